package domain

// Task stages.
const (
	StageTodo       = "todo"
	StageInProgress = "in_progress"
	StageCompleted  = "completed"
)

// File approval statuses. A file with no ledger entry counts as pending.
const (
	FileStatusPending  = "pending"
	FileStatusApproved = "approved"
	FileStatusRejected = "rejected"
)

// Activity types.
const (
	ActivityAssigned          = "assigned"
	ActivityStarted           = "started"
	ActivityInProgress        = "in_progress"
	ActivityBug               = "bug"
	ActivityCompleted         = "completed"
	ActivityCommented         = "commented"
	ActivityFileStatusChanged = "file_status_changed"
	ActivityFileRemoved       = "file_removed"
	ActivitySubTaskDeleted    = "subtask_deleted"
)

// Task priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

func ValidStage(s string) bool {
	switch s {
	case StageTodo, StageInProgress, StageCompleted:
		return true
	}
	return false
}

func ValidFileStatus(s string) bool {
	switch s {
	case FileStatusPending, FileStatusApproved, FileStatusRejected:
		return true
	}
	return false
}

func ValidPriority(s string) bool {
	switch s {
	case PriorityHigh, PriorityMedium, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func ValidActivityType(s string) bool {
	switch s {
	case ActivityAssigned, ActivityStarted, ActivityInProgress, ActivityBug,
		ActivityCompleted, ActivityCommented, ActivityFileStatusChanged,
		ActivityFileRemoved, ActivitySubTaskDeleted:
		return true
	}
	return false
}

type Task struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Priority     string            `json:"priority" enum:"high,medium,normal,low"`
	Stage        string            `json:"stage" enum:"todo,in_progress,completed"`
	Date         string            `json:"date" format:"date-time"`
	Area         string            `json:"area,omitempty"`
	Company      string            `json:"company,omitempty"`
	Assets       []string          `json:"assets,omitempty"`
	FileStatuses map[string]string `json:"file_statuses,omitempty"`
	SubTasks     []SubTask         `json:"sub_tasks,omitempty"`
	Activities   []Activity        `json:"activities,omitempty"`
	Links        []string          `json:"links,omitempty"`
	Team         []string          `json:"team,omitempty"`
	IsTrashed    bool              `json:"is_trashed"`
	CreatedAt    string            `json:"created_at" format:"date-time"`
	UpdatedAt    string            `json:"updated_at" format:"date-time"`
}

// SubTask is owned by exactly one task and has no independent activity log.
type SubTask struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Date         string            `json:"date,omitempty" format:"date-time"`
	Tag          string            `json:"tag,omitempty"`
	IsCompleted  bool              `json:"is_completed"`
	Assets       []string          `json:"assets,omitempty"`
	FileStatuses map[string]string `json:"file_statuses,omitempty"`
}

type Activity struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Activity string `json:"activity"`
	File     string `json:"file,omitempty"`
	Status   string `json:"status,omitempty" enum:"pending,approved,rejected"`
	By       string `json:"by,omitempty"`
	Date     string `json:"date" format:"date-time"`
}

// Folder groups tasks; Status is derived from member task stages.
type Folder struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Date      string   `json:"date" format:"date-time"`
	Company   string   `json:"company,omitempty"`
	Area      string   `json:"area,omitempty"`
	Status    string   `json:"status" enum:"todo,in_progress,completed"`
	PDFPath   string   `json:"pdf_path,omitempty"`
	Tasks     []string `json:"tasks,omitempty"`
	Team      []string `json:"team,omitempty"`
	IsTrashed bool     `json:"is_trashed"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
	Role      string `json:"role,omitempty"`
	Email     string `json:"email,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Notice is a fire-and-forget notification record, never part of the
// status propagation machinery.
type Notice struct {
	ID        string   `json:"id"`
	TaskID    string   `json:"task_id"`
	Text      string   `json:"text"`
	Team      []string `json:"team,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
