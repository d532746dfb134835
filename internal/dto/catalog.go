package dto

// TimeSlotRequest creates or replaces a time slot.
type TimeSlotRequest struct {
	ID          string `json:"id,omitempty"`
	Label       string `json:"label"`
	StartMinute *int   `json:"startMinute" validate:"required,min=0,max=1439"`
	EndMinute   *int   `json:"endMinute" validate:"required,min=0,max=1439"`
}

// SubjectRequest creates or replaces a subject.
type SubjectRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name" validate:"required"`
	Code  string `json:"code" validate:"required,max=32"`
	Color string `json:"color"`
}

// TeacherRequest creates or replaces a teacher.
type TeacherRequest struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name" validate:"required"`
	SubjectIDs []string `json:"subjectIds" validate:"omitempty,dive,required"`
}

// RoomRequest creates or replaces a room.
type RoomRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name" validate:"required"`
	Capacity int    `json:"capacity" validate:"min=0"`
	Kind     string `json:"kind" validate:"required,oneof=classroom lab hall library"`
}

// SchoolClassRequest creates or replaces a class.
type SchoolClassRequest struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name" validate:"required"`
	Grade        string `json:"grade"`
	Section      string `json:"section"`
	StudentCount int    `json:"studentCount" validate:"min=0"`
}

// CatalogListQuery pages through a catalog collection.
type CatalogListQuery struct {
	Search string `form:"search"`
	Page   int    `form:"page" validate:"omitempty,min=1"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=100"`
}
