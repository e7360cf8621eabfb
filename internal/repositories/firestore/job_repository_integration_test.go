//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/tolkfield/api/internal/domain"
	pconfig "github.com/tolkfield/api/internal/platform/config"
	pfirestore "github.com/tolkfield/api/internal/platform/firestore"
	"github.com/tolkfield/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestJobRepositoryAcceptIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "booking-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	assignments, err := NewAssignmentRepository(provider)
	if err != nil {
		t.Fatalf("new assignment repository: %v", err)
	}
	jobs, err := NewJobRepository(provider, assignments)
	if err != nil {
		t.Fatalf("new job repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	job := domain.Job{
		ID:             "job-accept-race",
		CustomerID:     "cust-1",
		FromLanguageID: "lang-ar",
		Kind:           domain.JobKindPaid,
		PhoneDelivery:  true,
		Due:            now.Add(48 * time.Hour),
		Status:         domain.JobStatusPending,
		WillExpireAt:   now.Add(24 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := jobs.Insert(ctx, job); err != nil {
		t.Fatalf("insert job: %v", err)
	}

	const racers = 8
	winners := make([]string, 0, racers)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	conflicts := 0

	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(idx int) {
			defer wg.Done()
			translatorID := fmt.Sprintf("tr-%d", idx)
			assignment := domain.TranslatorAssignment{
				ID:           fmt.Sprintf("asg-%d", idx),
				JobID:        job.ID,
				TranslatorID: translatorID,
				CreatedAt:    time.Now().UTC(),
			}
			_, err := jobs.AcceptIfPending(ctx, job.ID, assignment)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var repoErr repositories.RepositoryError
				if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
					t.Errorf("accept %d: unexpected error %v", idx, err)
				}
				conflicts++
				return
			}
			winners = append(winners, translatorID)
		}(i)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winning accept, got %d (%v)", len(winners), winners)
	}
	if conflicts != racers-1 {
		t.Fatalf("expected %d conflicts, got %d", racers-1, conflicts)
	}

	stored, err := jobs.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	if stored.Status != domain.JobStatusAssigned {
		t.Fatalf("job status = %q, want assigned", stored.Status)
	}

	live, err := assignments.FindLiveByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("find live assignment: %v", err)
	}
	if live.TranslatorID != winners[0] {
		t.Fatalf("live assignment translator = %q, want %q", live.TranslatorID, winners[0])
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
