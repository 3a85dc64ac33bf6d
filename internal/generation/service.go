package generation

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/iago/assessment-dispatch/internal/ai"
	"github.com/iago/assessment-dispatch/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

//go:embed prompts/*.tmpl
var embeddedPrompts embed.FS

const jsonInstructions = "Return only valid JSON. Do not use markdown code fences."

type Dependencies struct {
	Router *ai.ModelRouter
	Client ai.TextGenerator
	// RequestsPerMinute caps outgoing provider calls; zero disables the limit.
	RequestsPerMinute int
	// PromptsDir overrides the built-in prompt templates when set.
	PromptsDir string
	Logger     *zap.SugaredLogger
}

// Service implements Capability on top of a chat-completion provider.
type Service struct {
	router    *ai.ModelRouter
	client    ai.TextGenerator
	limiter   *rate.Limiter
	templates *template.Template
	log       *zap.SugaredLogger
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Client == nil {
		return nil, errors.New("text generator is required")
	}
	if deps.Router == nil {
		deps.Router = ai.NewModelRouter(ai.ModelRouterConfig{})
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}

	var prompts fs.FS
	if dir := strings.TrimSpace(deps.PromptsDir); dir != "" {
		prompts = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(embeddedPrompts, "prompts")
		if err != nil {
			return nil, err
		}
		prompts = sub
	}
	templates, err := parseTemplates(prompts)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if deps.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(deps.RequestsPerMinute)), 1)
	}

	return &Service{
		router:    deps.Router,
		client:    deps.Client,
		limiter:   limiter,
		templates: templates,
		log:       deps.Logger.Named("generation"),
	}, nil
}

func parseTemplates(prompts fs.FS) (*template.Template, error) {
	funcs := template.FuncMap{
		"inc":  func(i int) int { return i + 1 },
		"join": func(values []string) string { return strings.Join(values, ", ") },
	}
	templates, err := template.New("prompts").Funcs(funcs).ParseFS(prompts, "*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	for _, name := range []string{"viva_generate.tmpl", "viva_regenerate.tmpl", "rubric_generate.tmpl", "rubric_convert.tmpl"} {
		if templates.Lookup(name) == nil {
			return nil, fmt.Errorf("prompt template %s is missing", name)
		}
	}
	return templates, nil
}

type categoryCount struct {
	Name  string
	Count int
}

func (s *Service) GenerateQuestions(ctx context.Context, payload *domain.VivaGeneratePayload, content string) (json.RawMessage, error) {
	counts := payload.QuestionCounts.ByCategory()
	categories := make([]categoryCount, 0, len(counts))
	for _, name := range domain.CanonicalCategories {
		if counts[name] > 0 {
			categories = append(categories, categoryCount{Name: name, Count: counts[name]})
		}
	}

	return s.run(ctx, ai.TaskVivaQuestions, "viva_generate.tmpl", struct {
		*domain.VivaGeneratePayload
		Categories []categoryCount
		Content    string
	}{payload, categories, content})
}

func (s *Service) RegenerateQuestions(ctx context.Context, payload *domain.VivaRegeneratePayload, content string) (json.RawMessage, error) {
	return s.run(ctx, ai.TaskVivaRegeneration, "viva_regenerate.tmpl", struct {
		*domain.VivaRegeneratePayload
		Content string
	}{payload, content})
}

func (s *Service) GenerateRubric(ctx context.Context, payload *domain.RubricGeneratePayload) (json.RawMessage, error) {
	return s.run(ctx, ai.TaskRubricGeneration, "rubric_generate.tmpl", payload)
}

func (s *Service) ConvertRubric(ctx context.Context, payload *domain.RubricConvertPayload, content string) (json.RawMessage, error) {
	return s.run(ctx, ai.TaskRubricConversion, "rubric_convert.tmpl", struct {
		*domain.RubricConvertPayload
		Content string
	}{payload, content})
}

func (s *Service) run(ctx context.Context, task ai.TaskKind, templateName string, data any) (json.RawMessage, error) {
	prompt, err := s.renderPrompt(templateName, data)
	if err != nil {
		return nil, err
	}

	text, modelID, err := s.generateText(ctx, s.router.Select(task), prompt)
	if err != nil {
		return nil, err
	}

	body, err := extractJSON(text)
	if err != nil {
		s.log.Warnw("unparseable model output", "task", task, "model", modelID, "length", len(text))
		return nil, err
	}
	s.log.Debugw("generation completed", "task", task, "model", modelID, "bytes", len(body))
	return body, nil
}

func (s *Service) generateText(ctx context.Context, profile ai.ModelProfile, prompt string) (string, string, error) {
	if !s.client.Available() {
		return "", "", ai.ErrProviderUnavailable
	}

	request := ai.GenerateRequest{
		Model:           profile.PrimaryModel,
		Instructions:    jsonInstructions,
		Input:           prompt,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
		JSONResponse:    true,
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", "", fmt.Errorf("wait for generation slot: %w", err)
	}
	primary, err := s.client.Generate(ctx, request)
	if err == nil {
		return primary.Text, primary.ModelID, nil
	}

	if strings.TrimSpace(profile.FallbackModel) == "" || profile.FallbackModel == profile.PrimaryModel {
		return "", "", err
	}
	s.log.Warnw("primary model failed, trying fallback", "model", profile.PrimaryModel, "fallback", profile.FallbackModel, "error", err)

	request.Model = profile.FallbackModel
	if waitErr := s.limiter.Wait(ctx); waitErr != nil {
		return "", "", fmt.Errorf("wait for generation slot: %w", waitErr)
	}
	fallback, fallbackErr := s.client.Generate(ctx, request)
	if fallbackErr != nil {
		return "", "", fmt.Errorf("primary model failed: %v; fallback failed: %w", err, fallbackErr)
	}
	return fallback.Text, fallback.ModelID, nil
}

func (s *Service) renderPrompt(name string, data any) (string, error) {
	var buffer bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buffer, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buffer.String(), nil
}

func extractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("empty model output")
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = stripCodeFence(trimmed)
	}

	if trimmed == "null" {
		return nil, errors.New("model returned null")
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, errors.New("model output is not valid JSON")
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
