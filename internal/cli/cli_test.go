package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/cattree/internal/db"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/merge"
	"github.com/lherron/cattree/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

type harness struct {
	t      *testing.T
	db     *db.DB
	dbPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("CATTREE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CATTREE_ACTOR", "tester")
	t.Setenv("CATTREE_REDIS_ADDR", "")
	t.Setenv("CATTREE_OUTPUT", "")
	t.Setenv("CATTREE_DEPENDENTS", "")
	t.Setenv("CATTREE_LOG_LEVEL", "error")

	database, path := testutil.TempDB(t)
	h := &harness{t: t, db: database, dbPath: path}
	if _, err := h.adm("init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return h
}

func (h *harness) count(table, id string) int {
	return testutil.CountRows(h.t, h.db, table, id)
}

func (h *harness) exec(root *cobra.Command, args ...string) (string, error) {
	h.t.Helper()
	resetFlags(root)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--db", h.dbPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (h *harness) run(args ...string) (string, error) { return h.exec(rootCmd, args...) }
func (h *harness) adm(args ...string) (string, error) { return h.exec(rootAdmCmd, args...) }

func (h *harness) mk(args ...string) domain.Node {
	h.t.Helper()
	out, err := h.run(append([]string{"mk", "-o", "json"}, args...)...)
	if err != nil {
		h.t.Fatalf("mk %v failed: %v", args, err)
	}
	var nodes []domain.Node
	if err := json.Unmarshal([]byte(out), &nodes); err != nil || len(nodes) != 1 {
		h.t.Fatalf("mk output not a single node: %v\n%s", err, out)
	}
	return nodes[0]
}

func TestCLI_MergeWorkflow(t *testing.T) {
	h := newHarness(t)

	if _, err := h.adm("type", "add", "Receitas - Base"); err != nil {
		t.Fatalf("type add failed: %v", err)
	}
	source := h.mk("--type", "receitas_-_base", "ROTISSERIA")
	child := h.mk("--parent", source.ID, "PRODUCAO - ROTISSERIA")
	target := h.mk("--type", "receitas_-_base", "--code", "017", "Rotisseria")
	if child.Level != 2 || child.Type != "receitas_-_base" {
		t.Fatalf("child should be level 2 of the parent's type, got %+v", child)
	}

	testutil.InsertRefs(t, h.db, "Recipe", source.ID, 3)

	out, err := h.adm("dupes", "--type", "receitas_-_base", "-o", "json")
	if err != nil {
		t.Fatalf("dupes failed: %v", err)
	}
	var clusters []clusterView
	if err := json.Unmarshal([]byte(out), &clusters); err != nil {
		t.Fatalf("dupes output: %v\n%s", err, out)
	}
	if len(clusters) != 1 || clusters[0].Survivor != target.ID {
		t.Fatalf("expected one cluster kept by %s, got %+v", target.ID, clusters)
	}

	out, err = h.adm("merge", source.ID, target.ID, "--dry-run")
	if err != nil {
		t.Fatalf("merge --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "+ROTISSERIA (inactive)") {
		t.Errorf("dry run should show the source going inactive:\n%s", out)
	}
	if h.count("Recipe", source.ID) != 3 {
		t.Fatal("dry run must not rewrite references")
	}

	out, err = h.adm("merge", source.ID, target.ID)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if !strings.Contains(out, "3 reference(s) rewritten") {
		t.Errorf("unexpected merge output:\n%s", out)
	}
	if h.count("Recipe", source.ID) != 0 || h.count("Recipe", target.ID) != 3 {
		t.Error("references were not moved to the target")
	}

	out, err = h.adm("merge", source.ID, target.ID)
	if err != nil {
		t.Fatalf("second merge failed: %v", err)
	}
	if !strings.Contains(out, "nothing to do") {
		t.Errorf("second merge should be a no-op:\n%s", out)
	}

	out, err = h.run("tree", "--type", "receitas_-_base")
	if err != nil {
		t.Fatalf("tree failed: %v", err)
	}
	if out != "Rotisseria [017]\n└── PRODUCAO - ROTISSERIA\n" {
		t.Errorf("unexpected tree:\n%s", out)
	}

	_, err = h.run("rm", target.ID)
	if !errors.Is(err, domain.ErrHasChildren) || ExitCode(err) != exitConflict {
		t.Errorf("expected has-children conflict, got %v (exit %d)", err, ExitCode(err))
	}
	if _, err := h.run("rm", source.ID); err != nil {
		t.Errorf("merged source should be deletable: %v", err)
	}

	out, err = h.run("log", target.ID)
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	if !strings.Contains(out, "category_node.created") {
		t.Errorf("log should list the creation event:\n%s", out)
	}

	if _, err := h.adm("doctor"); err != nil {
		t.Errorf("doctor should pass on a clean database: %v", err)
	}
}

func TestCLI_DedupeAndPrune(t *testing.T) {
	h := newHarness(t)

	a := h.mk("--type", "ingredientes", "Carnes")
	h.mk("--parent", a.ID, "Bovinos")
	b := h.mk("--type", "ingredientes", "CARNES")
	h.mk("--parent", b.ID, "bovinos")
	h.mk("--parent", b.ID, "Suínos")

	out, err := h.adm("dedupe", "--type", "ingredientes")
	if err != nil {
		t.Fatalf("dedupe failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "✓ 1 merge(s), 0 skipped") {
		t.Errorf("unexpected dedupe output:\n%s", out)
	}

	out, err = h.adm("dupes", "--type", "ingredientes")
	if err != nil {
		t.Fatalf("dupes failed: %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Errorf("no clusters should remain:\n%s", out)
	}

	out, err = h.adm("prune", "--type", "ingredientes", "*/su*nos", "--dry-run")
	if err != nil {
		t.Fatalf("prune --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "1 node(s) match") {
		t.Errorf("unexpected prune dry run:\n%s", out)
	}
	if _, err := h.adm("prune", "--type", "ingredientes", "*/su*nos"); err != nil {
		t.Fatalf("prune failed: %v", err)
	}
}

func TestCLI_Validation(t *testing.T) {
	h := newHarness(t)

	root := h.mk("--type", "receitas", "Guarnição", "--code", "017")
	mid := h.mk("--parent", root.ID, "Arroz")
	leaf := h.mk("--parent", mid.ID, "Arroz Branco")

	_, err := h.run("mk", "--parent", leaf.ID, "Demais")
	if !errors.Is(err, domain.ErrDepthExceeded) || ExitCode(err) != exitInvalid {
		t.Errorf("expected depth exceeded, got %v", err)
	}

	_, err = h.run("mk", "--type", "receitas", "Outra", "--code", "017")
	if !errors.Is(err, domain.ErrDuplicateCode) {
		t.Errorf("expected duplicate code, got %v", err)
	}

	_, err = h.run("mk", "--type", "contas", "--parent", root.ID, "X")
	if !errors.Is(err, domain.ErrTypeMismatch) {
		t.Errorf("expected type mismatch, got %v", err)
	}

	_, err = h.adm("merge", root.ID, mid.ID)
	if !errors.Is(err, domain.ErrWouldCreateCycle) {
		t.Errorf("expected cycle rejection, got %v", err)
	}

	_, err = h.adm("type", "retire", "receitas")
	if !errors.Is(err, domain.ErrSystemType) || ExitCode(err) != exitConflict {
		t.Errorf("expected system type conflict, got %v", err)
	}

	out, err := h.run("path", "receitas:guarnicao/ARROZ/arroz branco")
	if err != nil {
		t.Fatalf("path failed: %v", err)
	}
	if strings.TrimSpace(out) != "Guarnição/Arroz/Arroz Branco" {
		t.Errorf("unexpected path %q", out)
	}

	_, err = h.run("deactivate", mid.ID)
	if !errors.Is(err, domain.ErrHasChildren) {
		t.Errorf("expected has-children, got %v", err)
	}
}

func TestCLI_ExportImport(t *testing.T) {
	src := newHarness(t)
	root := src.mk("--type", "receitas", "Guarnição", "--code", "017")
	src.mk("--parent", root.ID, "Arroz")
	old := src.mk("--type", "receitas", "GUARNICAO")
	if _, err := src.run("deactivate", old.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	file := filepath.Join(t.TempDir(), "out", "receitas.json")
	if _, err := src.adm("export", "--type", "receitas", "--all", "-f", file); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	want, err := src.run("tree", "--type", "receitas", "--all", "--ids")
	if err != nil {
		t.Fatal(err)
	}

	dst := newHarness(t)
	out, err := dst.adm("import", file)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "imported 0 type(s), 3 node(s)") {
		t.Errorf("unexpected import output:\n%s", out)
	}
	got, err := dst.run("tree", "--type", "receitas", "--all", "--ids")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("imported tree differs:\n%s\nwant:\n%s", got, want)
	}

	out, err = dst.adm("import", file)
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if !strings.Contains(out, "3 node(s) already present") {
		t.Errorf("second import should skip everything:\n%s", out)
	}
}

func TestCLI_MigrateStatus(t *testing.T) {
	h := newHarness(t)

	out, err := h.adm("migrate", "--status", "-o", "json")
	if err != nil {
		t.Fatalf("migrate --status failed: %v", err)
	}
	var states []migrationState
	if err := json.Unmarshal([]byte(out), &states); err != nil || len(states) != 1 {
		t.Fatalf("unexpected status output: %v\n%s", err, out)
	}
	if st := states[0]; len(st.Applied) != 2 || len(st.Pending) != 0 || st.Database != h.dbPath {
		t.Errorf("unexpected status %+v", st)
	}

	out, err = h.adm("migrate")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "up to date") {
		t.Errorf("expected up to date, got %q", out)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"validation", domain.Errorf(domain.ErrDepthExceeded, "x", "too deep"), exitInvalid},
		{"not found", domain.NotFound("node", "x"), exitNotFound},
		{"precondition", fmt.Errorf("rm: %w", domain.Errorf(domain.ErrHasReferences, "x", "")), exitConflict},
		{"etag", &domain.ETagMismatchError{Expected: 1, Actual: 2}, exitConflict},
		{"partial", &merge.PartialFailureError{Err: errors.New("boom")}, exitPartial},
		{"explicit", exitError(exitIntegrity, errors.New("corrupt")), exitIntegrity},
		{"other", errors.New("disk full"), exitGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
