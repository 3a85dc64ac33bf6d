package ai

import "strings"

type TaskKind string

const (
	TaskVivaQuestions    TaskKind = "viva_questions"
	TaskVivaRegeneration TaskKind = "viva_regeneration"
	TaskRubricGeneration TaskKind = "rubric_generation"
	TaskRubricConversion TaskKind = "rubric_conversion"
)

type ModelProfile struct {
	PrimaryModel    string
	FallbackModel   string
	Temperature     float64
	MaxOutputTokens int
}

type ModelRouterConfig struct {
	VivaPrimary  string
	VivaFallback string

	RubricPrimary  string
	RubricFallback string
}

type ModelRouter struct {
	config ModelRouterConfig
}

func NewModelRouter(config ModelRouterConfig) *ModelRouter {
	if strings.TrimSpace(config.VivaPrimary) == "" {
		config.VivaPrimary = "gpt-4o-mini"
	}
	if strings.TrimSpace(config.RubricPrimary) == "" {
		config.RubricPrimary = "gpt-4o"
	}
	if strings.TrimSpace(config.RubricFallback) == "" {
		config.RubricFallback = config.VivaPrimary
	}
	return &ModelRouter{config: config}
}

func (r *ModelRouter) Select(task TaskKind) ModelProfile {
	switch task {
	case TaskVivaRegeneration:
		return ModelProfile{
			PrimaryModel:    r.config.VivaPrimary,
			FallbackModel:   r.config.VivaFallback,
			Temperature:     0.7,
			MaxOutputTokens: 1200,
		}
	case TaskRubricGeneration, TaskRubricConversion:
		return ModelProfile{
			PrimaryModel:    r.config.RubricPrimary,
			FallbackModel:   r.config.RubricFallback,
			Temperature:     0.3,
			MaxOutputTokens: 4000,
		}
	default:
		return ModelProfile{
			PrimaryModel:    r.config.VivaPrimary,
			FallbackModel:   r.config.VivaFallback,
			Temperature:     0.5,
			MaxOutputTokens: 2500,
		}
	}
}
