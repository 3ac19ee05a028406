package dto

// NavigationStartRequest opens a drill-down session at the school overview.
type NavigationStartRequest struct {
	SchoolID string `json:"schoolId" validate:"required,max=64"`
	WindowQuery
}

// NavigationPushRequest drills into a child level.
type NavigationPushRequest struct {
	Level string `json:"level" validate:"required,oneof=class student item response"`
	ID    string `json:"id" validate:"required,max=64"`
}

// NavigationContextRequest stores UI selection state on the current level.
type NavigationContextRequest struct {
	ScrollOffset  int    `json:"scrollOffset" validate:"min=0"`
	HighlightedID string `json:"highlightedId" validate:"max=64"`
}

// ExportCreateRequest asks for an export of one engagement view.
type ExportCreateRequest struct {
	Dataset string `json:"dataset" validate:"required,oneof=classes students leaderboard"`
	Format  string `json:"format" validate:"omitempty,oneof=csv pdf"`
	Limit   int    `json:"limit" validate:"omitempty,min=1,max=100"`
	ListQuery
}
