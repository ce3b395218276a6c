package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tailorjd/tailorjd-be/internal/config"
	"github.com/tailorjd/tailorjd-be/internal/domain"
	"github.com/tailorjd/tailorjd-be/internal/llm"
)

// pipeline is the per-job-type algorithm a queue runs. validate is checked
// before any upstream call or document write happens.
type pipeline interface {
	validate(p *domain.JobPayload) error
	run(ctx context.Context, r *runner, p *domain.JobPayload) (*domain.JobResult, error)
}

// runner bundles the collaborators a pipeline run needs.
type runner struct {
	docs            DocStore
	prompts         *config.Prompts
	stageTimeout    time.Duration
	now             func() time.Time
	newConversation func() *llm.Conversation
}

// chainInput carries the two working texts the shared chain splices into its
// prompts: the resume being tailored and the job description to tailor against.
type chainInput struct {
	resume string
	jd     string
}

type chainStage struct {
	name    string
	docType domain.DocType
	prompt  func(p *config.Prompts, in chainInput) string
}

// chainStages is the analyze, rewrite, cover-letter sequence shared by both
// pipelines. Each stage sees the full transcript of the stages before it;
// the cover-letter stage relies entirely on that accumulated context.
var chainStages = []chainStage{
	{
		name:    "analysis",
		docType: domain.DocTypeAnalysis,
		prompt: func(p *config.Prompts, in chainInput) string {
			return p.Analysis + in.jd
		},
	},
	{
		name:    "rewrite_resume",
		docType: domain.DocTypeRewriteResume,
		prompt: func(p *config.Prompts, in chainInput) string {
			return p.Compare + in.resume
		},
	},
	{
		name:    "cover_letter",
		docType: domain.DocTypeCoverLetter,
		prompt: func(p *config.Prompts, in chainInput) string {
			return p.CoverLetter
		},
	},
}

func (r *runner) runChain(ctx context.Context, conv *llm.Conversation, in chainInput, userID, collectionID string, result *domain.JobResult) error {
	for _, st := range chainStages {
		content, err := r.runStage(ctx, conv, st.prompt(r.prompts, in))
		if err != nil {
			return fmt.Errorf("%s stage: %w", st.name, err)
		}

		if err := r.createDoc(ctx, userID, st.docType, content, collectionID, result); err != nil {
			return err
		}

		conv.AppendAssistant(content)
	}

	return nil
}

// runStage executes one conversation turn under the per-stage deadline.
func (r *runner) runStage(ctx context.Context, conv *llm.Conversation, userMessage string) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.stageTimeout)
	defer cancel()

	return conv.RunTurn(stageCtx, userMessage)
}

func (r *runner) createDoc(ctx context.Context, userID string, docType domain.DocType, content, collectionID string, result *domain.JobResult) error {
	doc := &domain.Document{
		ID:           uuid.New().String(),
		UserID:       userID,
		DocType:      docType,
		Content:      content,
		CollectionID: collectionID,
		CreatedAt:    r.now(),
	}

	if err := r.docs.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to create %s document: %w", docType, err)
	}

	result.Docs = append(result.Docs, domain.DocRef{ID: doc.ID, DocType: docType})
	return nil
}

func (r *runner) createCollection(ctx context.Context, label, userResume, jd string) (*domain.DocCollection, error) {
	col := &domain.DocCollection{
		ID:         uuid.New().String(),
		Name:       fmt.Sprintf("%s - %s", label, r.now().Format("2006-01-02 @ 15:04:05")),
		UserResume: userResume,
		JD:         jd,
		CreatedAt:  r.now(),
	}

	if err := r.docs.CreateCollection(ctx, col); err != nil {
		return nil, fmt.Errorf("failed to create doc collection: %w", err)
	}

	return col, nil
}

// rewritePipeline runs the three-stage chain over an existing resume and a
// single job description.
type rewritePipeline struct{}

func (rewritePipeline) validate(p *domain.JobPayload) error {
	if p.UserResume == "" || p.JD == "" {
		return fmt.Errorf("%w: resume and job description are required", domain.ErrMissingInput)
	}
	return nil
}

func (rewritePipeline) run(ctx context.Context, r *runner, p *domain.JobPayload) (*domain.JobResult, error) {
	col, err := r.createCollection(ctx, "Rewrite", p.UserResume, p.JD)
	if err != nil {
		return nil, err
	}

	result := &domain.JobResult{CollectionID: col.ID}

	// The raw inputs are persisted first so the collection is complete even
	// if a later stage fails.
	if err := r.createDoc(ctx, p.UserID, domain.DocTypeUserResume, p.UserResume, col.ID, result); err != nil {
		return nil, err
	}
	if err := r.createDoc(ctx, p.UserID, domain.DocTypeJD, p.JD, col.ID, result); err != nil {
		return nil, err
	}

	conv := r.newConversation()
	if err := r.runChain(ctx, conv, chainInput{resume: p.UserResume, jd: p.JD}, p.UserID, col.ID, result); err != nil {
		return nil, err
	}

	return result, nil
}

// draftPipeline builds a resume from scratch out of three job descriptions:
// distill each in parallel, draft a resume targeting all three, then run the
// shared chain with the draft standing in for the user's resume.
type draftPipeline struct{}

func (draftPipeline) validate(p *domain.JobPayload) error {
	if p.JD1 == "" || p.JD2 == "" || p.JD3 == "" {
		return fmt.Errorf("%w: three job descriptions are required", domain.ErrMissingInput)
	}
	return nil
}

func (draftPipeline) run(ctx context.Context, r *runner, p *domain.JobPayload) (*domain.JobResult, error) {
	jds := []string{p.JD1, p.JD2, p.JD3}
	distilled := make([]string, len(jds))

	// All three distillations must succeed before drafting begins; one
	// failure fails the whole job. Each runs in a fresh conversation so the
	// fan-out shares no transcript state.
	g, groupCtx := errgroup.WithContext(ctx)
	for i, jd := range jds {
		i, jd := i, jd
		g.Go(func() error {
			conv := r.newConversation()
			out, err := r.runStage(groupCtx, conv, jd+r.prompts.Tokenize)
			if err != nil {
				return fmt.Errorf("tokenize stage %d: %w", i+1, err)
			}
			distilled[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var draftPrompt strings.Builder
	for i, d := range distilled {
		fmt.Fprintf(&draftPrompt, "<job description %d>%s</job description %d>\n", i+1, d, i+1)
	}
	draftPrompt.WriteString(r.prompts.Draft)

	conv := r.newConversation()
	draft, err := r.runStage(ctx, conv, draftPrompt.String())
	if err != nil {
		return nil, fmt.Errorf("draft stage: %w", err)
	}
	conv.AppendAssistant(draft)

	joined := fmt.Sprintf("JD1:\n\n%s\n\nJD2:\n\n%s\n\nJD3:\n\n%s", distilled[0], distilled[1], distilled[2])

	col, err := r.createCollection(ctx, "Draft", draft, joined)
	if err != nil {
		return nil, err
	}

	result := &domain.JobResult{CollectionID: col.ID}

	if err := r.createDoc(ctx, p.UserID, domain.DocTypeUserResume, draft, col.ID, result); err != nil {
		return nil, err
	}
	if err := r.createDoc(ctx, p.UserID, domain.DocTypeJD, joined, col.ID, result); err != nil {
		return nil, err
	}

	// The chain continues the drafting conversation, so later stages keep
	// the context in which the draft was produced.
	if err := r.runChain(ctx, conv, chainInput{resume: draft, jd: joined}, p.UserID, col.ID, result); err != nil {
		return nil, err
	}

	return result, nil
}
