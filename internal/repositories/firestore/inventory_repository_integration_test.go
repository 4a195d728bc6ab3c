//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/electrocart/api/internal/domain"
	pconfig "github.com/electrocart/api/internal/platform/config"
	pfirestore "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestInventoryRepositoryIntegration(t *testing.T) {
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
		ProjectID:    "inventory-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close()
	})

	repo := NewInventoryRepository(provider)
	orders := NewOrderRepository(provider)
	products := NewProductRepository(provider)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)

	seed := &domain.Product{
		ID:            "prod_001",
		Name:          "Mechanical Keyboard",
		Category:      "Peripherals",
		SKU:           "PER0001",
		Price:         125000,
		StockQuantity: 5,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := products.Create(ctx, seed); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	order := &domain.Order{
		ID:           "ord_test_1",
		UserID:       "u_test",
		CustomerName: "Test Customer",
		Items: []domain.OrderLineItem{
			{ProductID: "prod_001", Name: "Mechanical Keyboard", UnitPrice: 125000, Quantity: 3},
		},
		Subtotal:    375000,
		ShippingFee: 500,
		Total:       375500,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := orders.Create(ctx, order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	reserved, err := repo.Reserve(ctx, order.ID, domain.OrderStatusProcessing)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !reserved.StockUpdated || reserved.Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected order after reserve: %+v", reserved)
	}

	got, err := products.Get(ctx, "prod_001")
	if err != nil {
		t.Fatalf("get product after reserve: %v", err)
	}
	if got.StockQuantity != 2 {
		t.Fatalf("expected stock 2 after reserve, got %d", got.StockQuantity)
	}

	// A second stock-holding transition must not subtract stock again.
	shipped, err := repo.Reserve(ctx, order.ID, domain.OrderStatusShipped)
	if err != nil {
		t.Fatalf("reserve to shipped: %v", err)
	}
	if shipped.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped status, got %s", shipped.Status)
	}
	got, err = products.Get(ctx, "prod_001")
	if err != nil {
		t.Fatalf("get product after second reserve: %v", err)
	}
	if got.StockQuantity != 2 {
		t.Fatalf("stock moved twice: got %d", got.StockQuantity)
	}

	// Oversell: a fresh order asking for more units than remain must fail
	// atomically, leaving stock and the order untouched.
	oversell := &domain.Order{
		ID:     "ord_test_2",
		UserID: "u_test",
		Items: []domain.OrderLineItem{
			{ProductID: "prod_001", Name: "Mechanical Keyboard", UnitPrice: 125000, Quantity: 3},
		},
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := orders.Create(ctx, oversell); err != nil {
		t.Fatalf("seed oversell order: %v", err)
	}

	_, err = repo.Reserve(ctx, oversell.ID, domain.OrderStatusProcessing)
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected inventory error, got %T %v", err, err)
	}
	if invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock code, got %s", invErr.Code)
	}
	if invErr.ItemName != "Mechanical Keyboard" {
		t.Fatalf("expected offending item name, got %q", invErr.ItemName)
	}

	unchanged, err := orders.Get(ctx, oversell.ID)
	if err != nil {
		t.Fatalf("get oversell order: %v", err)
	}
	if unchanged.Status != domain.OrderStatusPending || unchanged.StockUpdated {
		t.Fatalf("oversell order mutated: %+v", unchanged)
	}

	// Cancelling returns the units and clears the flag.
	released, err := repo.Release(ctx, order.ID, domain.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.StockUpdated || released.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected order after release: %+v", released)
	}
	got, err = products.Get(ctx, "prod_001")
	if err != nil {
		t.Fatalf("get product after release: %v", err)
	}
	if got.StockQuantity != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got.StockQuantity)
	}

	// Releasing an order whose product has been deleted still succeeds.
	orphan := &domain.Order{
		ID:     "ord_test_3",
		UserID: "u_test",
		Items: []domain.OrderLineItem{
			{ProductID: "prod_gone", Name: "Discontinued Mouse", UnitPrice: 20000, Quantity: 1},
		},
		Status:       domain.OrderStatusProcessing,
		StockUpdated: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := orders.Create(ctx, orphan); err != nil {
		t.Fatalf("seed orphan order: %v", err)
	}
	cancelled, err := repo.Release(ctx, orphan.ID, domain.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("release with missing product: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.StockUpdated {
		t.Fatalf("unexpected orphan order after release: %+v", cancelled)
	}

	// Reserving against a missing product fails and names the item.
	missing := &domain.Order{
		ID:     "ord_test_4",
		UserID: "u_test",
		Items: []domain.OrderLineItem{
			{ProductID: "prod_gone", Name: "Discontinued Mouse", UnitPrice: 20000, Quantity: 1},
		},
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := orders.Create(ctx, missing); err != nil {
		t.Fatalf("seed missing-product order: %v", err)
	}
	_, err = repo.Reserve(ctx, missing.ID, domain.OrderStatusProcessing)
	invErr = nil
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorProductNotFound {
		t.Fatalf("expected product not found, got %v", err)
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
