package domain

import "time"

// Action enumerates the privilege-gated operations an employee can perform.
type Action string

const (
	ActionCreateTransaction       Action = "create_transaction"
	ActionModifyTransaction       Action = "modify_transaction"
	ActionDeleteTransaction       Action = "delete_transaction"
	ActionFetchTransaction        Action = "fetch_transaction"
	ActionCreatePromotion         Action = "create_promotion"
	ActionModifyPromotion         Action = "modify_promotion"
	ActionFetchPromotion          Action = "fetch_promotion"
	ActionGenerateTemplateContent Action = "generate_template_content"
)

// Access pairs an action with the integer authority level an employee
// holds for it.
type Access struct {
	Action    Action `json:"action"`
	Authority int    `json:"authority"`
}

type Employee struct {
	ID    string   `json:"id"`
	RID   string   `json:"rid"`
	Name  string   `json:"name"`
	Level []Access `json:"level"`
}

// Session is a resolved, request-scoped identity. It is constructed by the
// identity collaborator and read-only here; the core never persists it.
type Session struct {
	ID       string    `json:"id"`
	Key      string    `json:"key"`
	Employee Employee  `json:"employee"`
	Expiry   time.Time `json:"expiry"`
}

func (s Session) Expired(now time.Time) bool {
	return now.After(s.Expiry)
}

// HasPermission resolves the employee's authority for an action. A missing
// entry counts as authority 0. GenerateTemplateContent is always allowed;
// everything else requires authority >= 1.
func (s Session) HasPermission(action Action) bool {
	if action == ActionGenerateTemplateContent {
		return true
	}
	for _, access := range s.Employee.Level {
		if access.Action == action {
			return access.Authority >= 1
		}
	}
	return false
}
