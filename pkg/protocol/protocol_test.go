package protocol

import "testing"

func TestParseState(t *testing.T) {
	if got := ParseState("waiting_confirmation"); got != StateWaitingConfirmation {
		t.Errorf("ParseState = %q", got)
	}
	if got := ParseState("garbage"); got != StateUnknown {
		t.Errorf("expected unknown for garbage, got %q", got)
	}
	if got := ParseState(""); got != StateUnknown {
		t.Errorf("expected unknown for empty, got %q", got)
	}
	if StateUnknown.Valid() {
		t.Error("unknown must not be a valid enumeration member")
	}
}

func TestTicketFromFields_Sentinels(t *testing.T) {
	tk := TicketFromFields("user-1", map[string]string{
		FieldName:        "Ana",
		FieldProblemType: "Internet",
	}, TicketIncomplete)

	if tk.Name != "Ana" {
		t.Errorf("name = %q", tk.Name)
	}
	if tk.ProblemType != "Internet" {
		t.Errorf("problem type = %q", tk.ProblemType)
	}
	for name, got := range map[string]string{
		"sector":      tk.Sector,
		"cost_center": tk.CostCenter,
		"phone":       tk.Phone,
		"email":       tk.Email,
		"patrimony":   tk.Patrimony,
		"description": tk.ProblemDescription,
	} {
		if got != NotInformed {
			t.Errorf("%s = %q, want sentinel", name, got)
		}
	}
	if tk.Status != TicketIncomplete {
		t.Errorf("status = %q", tk.Status)
	}
}
