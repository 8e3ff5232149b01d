package wire

import "testing"

func TestCheckContextWithQualifiers(t *testing.T) {
	p := New()
	p.Command = CommandNode
	p.Qualifier = QualifierGetPredecessor
	p.Status = StatusRequest
	if !p.CheckContext(CommandNode, QualifierGetPredecessor, StatusRequest) {
		t.Fatal("expected match")
	}
	if p.CheckContext(CommandNode, QualifierSetPredecessor) {
		t.Fatal("expected mismatch on different qualifier")
	}
}
