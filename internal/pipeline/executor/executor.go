package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coursepilot/coursepilot-backend/internal/data/repos"
	"github.com/coursepilot/coursepilot-backend/internal/domain"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/command"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
	"github.com/coursepilot/coursepilot-backend/internal/platform/openai"
	"github.com/coursepilot/coursepilot-backend/internal/platform/pinecone"
)

// Per-command timeouts, each strictly shorter than a stage invocation's
// overall budget so a hung downstream degrades to a recorded per-phase
// failure instead of a stuck record.
const (
	embedTimeout    = 20 * time.Second
	searchTimeout   = 10 * time.Second
	generateTimeout = 90 * time.Second
	persistTimeout  = 15 * time.Second
)

// Executor interprets the Command union against the outside world. It is the
// only component allowed to perform I/O on behalf of a stage.
type Executor struct {
	log          *logger.Logger
	db           *gorm.DB
	ai           openai.Client
	vectors      pinecone.VectorStore
	sourcesNS    string
	courseRepo   repos.CourseRepo
	sectionRepo  repos.CourseSectionRepo
	pipelineRepo repos.PipelineEventRepo
}

func New(
	baseLog *logger.Logger,
	db *gorm.DB,
	ai openai.Client,
	vectors pinecone.VectorStore,
	courseRepo repos.CourseRepo,
	sectionRepo repos.CourseSectionRepo,
	pipelineRepo repos.PipelineEventRepo,
) *Executor {
	ns := strings.TrimSpace(os.Getenv("COURSEGEN_SOURCES_NAMESPACE"))
	if ns == "" {
		ns = "source-summaries"
	}
	return &Executor{
		log:          baseLog.With("component", "CommandExecutor"),
		db:           db,
		ai:           ai,
		vectors:      vectors,
		sourcesNS:    ns,
		courseRepo:   courseRepo,
		sectionRepo:  sectionRepo,
		pipelineRepo: pipelineRepo,
	}
}

func (e *Executor) Execute(ctx context.Context, cmd command.Command) (command.Result, error) {
	switch c := cmd.(type) {
	case command.ComputeEmbedding:
		return e.computeEmbedding(ctx, c)
	case command.SearchSimilar:
		return e.searchSimilar(ctx, c)
	case command.GenerateText:
		return e.generateText(ctx, c)
	case command.CreateCourseRecord:
		return e.createCourse(ctx, c)
	case command.CreateSections:
		return e.createSections(ctx, c)
	case command.RecordPipelineEvent:
		return e.recordEvent(ctx, c)
	default:
		return nil, command.Permanent("execute", fmt.Errorf("unknown command type %T", cmd))
	}
}

// ExecuteAll runs commands in order, stopping at the first failure. Results
// are index-aligned with the executed prefix.
func (e *Executor) ExecuteAll(ctx context.Context, cmds []command.Command) ([]command.Result, error) {
	results := make([]command.Result, 0, len(cmds))
	for _, cmd := range cmds {
		res, err := e.Execute(ctx, cmd)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Executor) computeEmbedding(ctx context.Context, c command.ComputeEmbedding) (command.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	vecs, err := e.ai.Embed(ctx, []string{c.Text})
	if err != nil {
		return nil, classify("compute_embedding", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, command.Permanent("compute_embedding", fmt.Errorf("empty embedding returned"))
	}
	return command.EmbeddingResult{Vector: vecs[0]}, nil
}

func (e *Executor) searchSimilar(ctx context.Context, c command.SearchSimilar) (command.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	matches, err := e.vectors.QueryMatches(ctx, e.sourcesNS, c.Vector, c.TopK)
	if err != nil {
		return nil, classify("search_similar", err)
	}
	out := make([]record.CandidateSource, 0, len(matches))
	for _, m := range matches {
		src := record.CandidateSource{ChunkID: m.ID, Score: m.Score}
		if s, ok := m.Metadata["summary"].(string); ok {
			src.Summary = s
		}
		out = append(out, src)
	}
	return command.SearchResult{Matches: out}, nil
}

func (e *Executor) generateText(ctx context.Context, c command.GenerateText) (command.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	text, err := e.ai.GenerateText(ctx, c.System, c.User)
	if err != nil {
		return nil, classify("generate_text", err)
	}
	return command.TextResult{Text: text}, nil
}

func (e *Executor) createCourse(ctx context.Context, c command.CreateCourseRecord) (command.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	if c.Course == nil || c.Course.ID == uuid.Nil {
		return nil, command.Permanent("create_course", fmt.Errorf("course row missing id"))
	}
	if _, err := e.courseRepo.Create(ctx, nil, []*domain.Course{c.Course}); err != nil {
		return nil, command.Transient("create_course", err)
	}
	return command.Ack{}, nil
}

func (e *Executor) createSections(ctx context.Context, c command.CreateSections) (command.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	if len(c.Sections) == 0 {
		return nil, command.Permanent("create_sections", fmt.Errorf("refusing to persist zero sections"))
	}
	if err := e.sectionRepo.CreateBatch(ctx, nil, c.Sections); err != nil {
		return nil, command.Transient("create_sections", err)
	}
	return command.Ack{}, nil
}

func (e *Executor) recordEvent(ctx context.Context, c command.RecordPipelineEvent) (command.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	row := &domain.PipelineEventLog{
		CourseID: c.CourseID,
		Phase:    string(c.Phase),
		Kind:     c.Kind,
		Detail:   c.Detail,
	}
	if err := e.pipelineRepo.Append(ctx, nil, row); err != nil {
		return nil, command.Transient("record_pipeline_event", err)
	}
	return command.Ack{}, nil
}

type retryableError interface {
	Retryable() bool
}

// classify maps client errors onto the pipeline taxonomy: rate limits,
// 5xx and transport failures are transient; 4xx responses are permanent.
func classify(op string, err error) error {
	var re retryableError
	if errors.As(err, &re) {
		if re.Retryable() {
			return command.Transient(op, err)
		}
		return command.Permanent(op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return command.Transient(op, err)
	}
	// Unclassified transport errors get the benefit of the doubt.
	return command.Transient(op, err)
}
