package export

import (
	"context"
	"fmt"
	"time"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetProject(ctx context.Context, id string) (ProjectInfo, error)
	ListIdeas(ctx context.Context, projectID string) ([]IdeaInfo, error)
}

// ProjectInfo holds basic project metadata
type ProjectInfo struct {
	ID          string
	Name        string
	Description string
}

// IdeaInfo holds the idea fields the matrix needs. X is effort, Y impact,
// both on a 0..100 scale.
type IdeaInfo struct {
	ID       string
	Title    string
	Category string
	Status   string
	X        float64
	Y        float64
}

// Service renders project boards into downloadable documents
type Service struct {
	store DataStore
}

func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	project, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	ideas, err := s.store.ListIdeas(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}

	data := TemplateData{
		ProjectName: project.Name,
		Description: project.Description,
		GeneratedAt: time.Now(),
		Quadrants:   bucketQuadrants(ideas),
	}

	html, err := RenderMatrixHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF, "":
		return exportPDF(html, project.Name)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// bucketQuadrants splits ideas across the four matrix cells. The midpoint of
// the 0..100 position space decides membership; exactly-50 lands in the
// higher-value cell.
func bucketQuadrants(ideas []IdeaInfo) []TemplateQuadrant {
	quadrants := []TemplateQuadrant{
		{Label: "Quick Wins", Hint: "high impact, low effort"},
		{Label: "Big Bets", Hint: "high impact, high effort"},
		{Label: "Fill-Ins", Hint: "low impact, low effort"},
		{Label: "Money Pits", Hint: "low impact, high effort"},
	}

	for _, idea := range ideas {
		highImpact := idea.Y >= 50
		highEffort := idea.X > 50
		var slot int
		switch {
		case highImpact && !highEffort:
			slot = 0
		case highImpact && highEffort:
			slot = 1
		case !highImpact && !highEffort:
			slot = 2
		default:
			slot = 3
		}
		quadrants[slot].Ideas = append(quadrants[slot].Ideas, TemplateIdea{
			Title:    idea.Title,
			Category: idea.Category,
			Status:   idea.Status,
			Impact:   idea.Y,
			Effort:   idea.X,
		})
	}
	return quadrants
}
