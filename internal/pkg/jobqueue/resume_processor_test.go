package jobqueue

import (
	"testing"

	"github.com/hirewireapp/hirewire/app/models"
)

func TestExtractCandidateFromFileName(t *testing.T) {
	p := &ResumeProcessor{}

	cases := []struct {
		fileName string
		want     string
	}{
		{"jane_doe.pdf", "jane doe"},
		{"John-Smith-CV.docx", "John Smith CV"},
		{"resume.pdf", "resume"},
	}
	for _, tc := range cases {
		resume := &models.Resume{FileName: tc.fileName}
		if err := p.extractCandidate(nil, resume); err != nil {
			t.Fatalf("extractCandidate(%q): %v", tc.fileName, err)
		}
		if resume.CandidateName != tc.want {
			t.Errorf("extractCandidate(%q) = %q, want %q", tc.fileName, resume.CandidateName, tc.want)
		}
	}
}

func TestExtractCandidateKeepsExistingName(t *testing.T) {
	p := &ResumeProcessor{}
	resume := &models.Resume{FileName: "upload_3418.pdf", CandidateName: "Ada Lovelace"}
	if err := p.extractCandidate(nil, resume); err != nil {
		t.Fatalf("extractCandidate: %v", err)
	}
	if resume.CandidateName != "Ada Lovelace" {
		t.Fatalf("expected existing name to survive, got %q", resume.CandidateName)
	}
}

func TestExtractCandidateRejectsEmptyFileName(t *testing.T) {
	p := &ResumeProcessor{}
	if err := p.extractCandidate(nil, &models.Resume{}); err == nil {
		t.Fatal("expected error for missing file name")
	}
}
