package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/story"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports whether the story directory and the progress store can be read",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

func (s *Server) registerStoryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listStories",
		Method:      http.MethodGet,
		Path:        "/api/v1/stories",
		Summary:     "List stories",
		Description: "Returns the catalog, newest first",
		Tags:        []string{"Stories"},
	}, s.handleListStories)

	huma.Register(s.api, huma.Operation{
		OperationID: "getStory",
		Method:      http.MethodGet,
		Path:        "/api/v1/stories/{id}",
		Summary:     "Get story",
		Description: "Returns one story with its blocks",
		Tags:        []string{"Stories"},
	}, s.handleGetStory)
}

func (s *Server) registerProgressRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress",
		Summary:     "List reading positions",
		Tags:        []string{"Progress"},
	}, s.handleListProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "getProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress/{storyID}",
		Summary:     "Get reading position",
		Tags:        []string{"Progress"},
	}, s.handleGetProgress)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteProgress",
		Method:        http.MethodDelete,
		Path:          "/api/v1/progress/{storyID}",
		Summary:       "Forget reading position",
		Tags:          []string{"Progress"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteProgress)
}

// === DTOs ===

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for huma.
type HealthOutput struct {
	Status int
	Body   HealthResponse
}

// StoriesOutput is the catalog.
type StoriesOutput struct {
	Body []story.Entry
}

// GetStoryInput selects a story.
type GetStoryInput struct {
	ID string `path:"id" doc:"Story ID"`
}

// StoryOutput is one story.
type StoryOutput struct {
	Body *domain.Story
}

// ProgressListOutput is every saved reading position.
type ProgressListOutput struct {
	Body []*domain.ReadingProgress
}

// ProgressInput selects the position of one story.
type ProgressInput struct {
	StoryID string `path:"storyID" doc:"Story ID"`
}

// ProgressOutput is one reading position.
type ProgressOutput struct {
	Body *domain.ReadingProgress
}

// === Handlers ===

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	components := map[string]ComponentHealth{
		"stories": check(func() error {
			_, err := s.stories.Catalog(ctx)
			return err
		}),
		"database": check(func() error {
			_, err := s.progress.ListProgress(ctx)
			return err
		}),
	}

	out := &HealthOutput{
		Status: http.StatusOK,
		Body:   HealthResponse{Status: "healthy", Components: components},
	}
	for _, c := range components {
		if c.Status != "healthy" {
			out.Status = http.StatusServiceUnavailable
			out.Body.Status = "unhealthy"
		}
	}
	return out, nil
}

func check(fn func() error) ComponentHealth {
	start := time.Now()
	err := fn()
	h := ComponentHealth{Status: "healthy", Latency: time.Since(start).String()}
	if err != nil {
		h.Status = "unhealthy"
		h.Message = err.Error()
	}
	return h
}

func (s *Server) handleListStories(ctx context.Context, _ *struct{}) (*StoriesOutput, error) {
	entries, err := s.stories.Catalog(ctx)
	if err != nil {
		return nil, apiError(err, s.logger)
	}
	if entries == nil {
		entries = []story.Entry{}
	}
	return &StoriesOutput{Body: entries}, nil
}

func (s *Server) handleGetStory(ctx context.Context, input *GetStoryInput) (*StoryOutput, error) {
	st, err := s.stories.Load(ctx, input.ID)
	if err != nil {
		return nil, apiError(err, s.logger)
	}
	return &StoryOutput{Body: st}, nil
}

func (s *Server) handleListProgress(ctx context.Context, _ *struct{}) (*ProgressListOutput, error) {
	all, err := s.progress.ListProgress(ctx)
	if err != nil {
		return nil, apiError(err, s.logger)
	}
	if all == nil {
		all = []*domain.ReadingProgress{}
	}
	return &ProgressListOutput{Body: all}, nil
}

func (s *Server) handleGetProgress(ctx context.Context, input *ProgressInput) (*ProgressOutput, error) {
	p, err := s.progress.LoadProgress(ctx, input.StoryID)
	if err != nil {
		return nil, apiError(err, s.logger)
	}
	return &ProgressOutput{Body: p}, nil
}

func (s *Server) handleDeleteProgress(ctx context.Context, input *ProgressInput) (*struct{}, error) {
	if err := s.progress.DeleteProgress(ctx, input.StoryID); err != nil {
		return nil, apiError(err, s.logger)
	}
	return nil, nil
}
