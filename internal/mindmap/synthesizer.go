package mindmap

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/store"
)

// ErrPersistence marks failures reading or writing the stored tree.
var ErrPersistence = errors.New("mindmap persistence failed")

// State is whether a group already has a stored tree.
type State int

const (
	NoMap State = iota
	HasMap
)

func (s State) String() string {
	if s == HasMap {
		return "has_map"
	}
	return "no_map"
}

// Transition is the edge a successful synthesis takes.
type Transition string

const (
	TransitionCreated Transition = "created"
	TransitionMerged  Transition = "merged"
)

const (
	toolName        = "create_mindmap"
	toolDescription = "Creates a mindmap."

	systemPrompt = "You are an expert at analyzing content and organizing it into a systematic mindmap. " +
		"Always answer by calling the create_mindmap tool."
)

// ToolCaller is the part of the LLM client the synthesizer needs.
type ToolCaller interface {
	CallTool(ctx context.Context, system, user string, fn llms.FunctionDefinition) (string, error)
}

// Repository reads and writes a group's stored tree.
type Repository interface {
	MindMap(ctx context.Context, group string) (*store.MindMap, error)
	CreateMindMap(ctx context.Context, group string, data []byte) error
	UpdateMindMap(ctx context.Context, group string, data []byte) error
}

// Result describes one synthesis.
type Result struct {
	Transition Transition
	Tree       *Node
	// Restored counts topics grafted back after the model dropped them.
	Restored int
}

// Synthesizer creates and merges group mind-maps.
type Synthesizer struct {
	llm    ToolCaller
	logger *logging.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(llm ToolCaller, logger *logging.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{llm: llm, logger: logger.Named("mindmap")}
}

// Tool is the function definition offered to the model.
func Tool() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name:        toolName,
		Description: toolDescription,
		Parameters:  Schema(),
	}
}

// Load returns the stored tree of a group and its state.
func Load(ctx context.Context, repo Repository, group string) (*Node, State, error) {
	row, err := repo.MindMap(ctx, group)
	if errors.Is(err, store.ErrMindMapNotFound) {
		return nil, NoMap, nil
	}
	if err != nil {
		return nil, NoMap, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	tree, err := Decode(row.Data)
	if err != nil {
		return nil, HasMap, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return tree, HasMap, nil
}

// Synthesize folds text into the group's tree and persists the result.
func (s *Synthesizer) Synthesize(ctx context.Context, repo Repository, group, text string) (*Result, error) {
	prev, state, err := Load(ctx, repo, group)
	if err != nil {
		return nil, err
	}

	prompt, err := userPrompt(prev, text)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "requesting mindmap", zap.String("group", group), zap.Stringer("state", state))
	args, err := s.llm.CallTool(ctx, systemPrompt, prompt, Tool())
	if err != nil {
		return nil, fmt.Errorf("mindmap tool call: %w", err)
	}
	tree, err := Parse(args)
	if err != nil {
		return nil, err
	}

	res := &Result{Tree: tree, Transition: TransitionCreated}
	if state == HasMap {
		res.Transition = TransitionMerged
		res.Restored = Graft(prev, tree)
		if res.Restored > 0 {
			s.logger.Info(ctx, "restored topics dropped by merge",
				zap.String("group", group),
				zap.Int("restored", res.Restored),
			)
		}
	}

	data, err := tree.MarshalIndent()
	if err != nil {
		return nil, fmt.Errorf("encoding mindmap: %w", err)
	}

	if state == NoMap {
		err = repo.CreateMindMap(ctx, group, data)
	} else {
		err = repo.UpdateMindMap(ctx, group, data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.logger.Info(ctx, "mindmap saved",
		zap.String("group", group),
		zap.String("transition", string(res.Transition)),
		zap.Int("topics", tree.Size()),
	)
	return res, nil
}

func userPrompt(prev *Node, text string) (string, error) {
	if prev == nil {
		return "Create a detailed mindmap from the following content.\n\n" + text, nil
	}
	existing, err := prev.MarshalIndent()
	if err != nil {
		return "", fmt.Errorf("encoding existing mindmap: %w", err)
	}
	return "Existing mindmap:\n" + string(existing) +
		"\n\nNew document content:\n" + text +
		"\n\nIntegrate the new document content into the existing mindmap and return the expanded mindmap. " +
		"Keep the existing structure as far as possible, adding new content at the appropriate places or as new branches.", nil
}
