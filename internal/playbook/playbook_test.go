package playbook

import (
	"strings"
	"testing"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

func TestEveryPlaybookRendersWithEmptyProfile(t *testing.T) {
	var profile models.ProspectProfile
	for _, name := range Names() {
		out := Render(name, &profile)
		if out == "" {
			t.Errorf("%s rendered empty", name)
		}
		if !strings.Contains(out, "EXECUTE PLAYBOOK: "+name) {
			t.Errorf("%s missing header: %q", name, out)
		}
		if strings.Contains(out, "{{") {
			t.Errorf("%s left template markers: %q", name, out)
		}
	}
}

func TestRenderUnknownPlaybook(t *testing.T) {
	if out := Render("does_not_exist", &models.ProspectProfile{}); out != "" {
		t.Errorf("expected empty output, got %q", out)
	}
}

func TestBridgeUsesProspectWords(t *testing.T) {
	profile := models.ProspectProfile{
		PainPoints:     []string{"we lose leads over the weekend"},
		CostOfInaction: "about 20k a month",
	}
	out := Render(BridgeWithTheirWords, &profile)
	if !strings.Contains(out, "we lose leads over the weekend") {
		t.Errorf("expected first pain in output, got %q", out)
	}
	if !strings.Contains(out, "about 20k a month") {
		t.Errorf("expected cost of inaction in output, got %q", out)
	}
}

func TestResolveAndCloseUsesLastObjection(t *testing.T) {
	var profile models.ProspectProfile
	profile.RecordObjection(models.ObjectionTiming, "next quarter")
	out := Render(ResolveAndClose, &profile)
	if !strings.Contains(out, "figure out the timing piece") {
		t.Errorf("expected timing objection in output, got %q", out)
	}
}

func TestBridgeRequiresPainPoints(t *testing.T) {
	pb, ok := Get(BridgeWithTheirWords)
	if !ok {
		t.Fatal("bridge playbook not registered")
	}
	if pb.Available(&models.ProspectProfile{}) {
		t.Error("bridge should be unavailable without pain points")
	}
	if !pb.Available(&models.ProspectProfile{PainPoints: []string{"x"}}) {
		t.Error("bridge should be available with pain points")
	}
}

func TestConsecutiveUseLimits(t *testing.T) {
	want := map[string]int{
		ConfusionRecovery:    2,
		BridgeWithTheirWords: 1,
		SpecificProbe:        2,
		OwnershipCeiling:     1,
	}
	for name, n := range want {
		pb, _ := Get(name)
		if pb.MaxConsecutiveUses != n {
			t.Errorf("%s: expected max uses %d, got %d", name, n, pb.MaxConsecutiveUses)
		}
	}
}
