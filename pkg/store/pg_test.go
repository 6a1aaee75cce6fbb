package store

import (
	"context"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainsafe/bridge-tracker/pkg/credit"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pgutil"
	mghelper "github.com/chainsafe/bridge-tracker/pkg/pgutil/migrations"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
	"github.com/chainsafe/bridge-tracker/pkg/withdrawal"
)

const (
	evmRef network.ChainRef = "evm-1"
	tvmRef network.ChainRef = "tvm-42"
)

func setupStore(t *testing.T) (context.Context, *pgStore) {
	t.Helper()
	requireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := mghelper.CreateSchema(ctx, db, &TransferDao{}); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return ctx, NewStore(db)
}

func requireDockerAccess(t *testing.T) {
	t.Helper()

	candidates := []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	}
	for _, sock := range candidates {
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		conn, err := (&net.Dialer{}).DialContext(context.Background(), "unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}
	t.Skip("docker daemon socket is not accessible; skipping testcontainer-backed store tests")
}

func newSnapshot(id string, updated time.Time) transfer.Snapshot {
	return transfer.Snapshot{
		Source:      evmRef,
		Destination: tvmRef,
		ID:          id,
		Route:       "evm_tvm",
		Prepare:     transfer.StageState{Status: transfer.StatusDisabled, Skipped: true},
		Transfer:    transfer.StageState{Status: transfer.StatusConfirmed, TxID: id, Confirmations: 12},
		Event:       transfer.StageState{Status: transfer.StatusPending},
		Release:     transfer.StageState{Status: transfer.StatusDisabled},
		Details: transfer.Details{
			Token:     "0x00000000000000000000000000000000000000aa",
			Amount:    big.NewInt(1_000_000),
			Recipient: "0:" + "11",
		},
		UpdatedAt: updated,
	}
}

func hash(n byte) string {
	b := make([]byte, 32)
	b[31] = n
	return "0x" + new(big.Int).SetBytes(b).Text(16)
}

func TestTransferPGStore_SaveAndGet(t *testing.T) {
	ctx, s := setupStore(t)

	snap := newSnapshot(hash(1), time.Now().UTC().Truncate(time.Millisecond))
	ttl := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	snap.Credit = &credit.State{Status: credit.StatusSwapInProgress, TTL: &ttl, Deployed: true}
	snap.PendingWithdrawal = &withdrawal.PendingWithdrawal{
		ID:        big.NewInt(7),
		Owner:     "0xowner",
		Recipient: "0xowner",
		Status:    withdrawal.StatusOpen,
		Amount:    big.NewInt(100),
		Bounty:    big.NewInt(0),
	}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	key := string(evmRef) + "/" + string(tvmRef) + "/" + snap.ID
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Transfer.Status != transfer.StatusConfirmed || got.Transfer.Confirmations != 12 {
		t.Errorf("transfer stage not preserved: %+v", got.Transfer)
	}
	if got.Details.Amount == nil || got.Details.Amount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("amount not preserved: %v", got.Details.Amount)
	}
	if got.Credit == nil || got.Credit.Status != credit.StatusSwapInProgress {
		t.Errorf("credit state not preserved: %+v", got.Credit)
	}
	if got.PendingWithdrawal == nil || got.PendingWithdrawal.ID.Int64() != 7 {
		t.Errorf("pending withdrawal not preserved: %+v", got.PendingWithdrawal)
	}

	if _, err := s.Get(ctx, "evm-1/tvm-42/0xmissing"); !errors.Is(err, ErrTransferNotFound) {
		t.Errorf("expected ErrTransferNotFound, got %v", err)
	}
}

func TestTransferPGStore_SaveUpserts(t *testing.T) {
	ctx, s := setupStore(t)

	snap := newSnapshot(hash(2), time.Now())
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("first Save() failed: %v", err)
	}
	snap.Event = transfer.StageState{Status: transfer.StatusConfirmed}
	snap.Release = transfer.StageState{Status: transfer.StatusConfirmed}
	snap.UpdatedAt = time.Now().Add(time.Second)
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	open, err := s.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() failed: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected finished transfer to be excluded, got %d open", len(open))
	}

	all, total, err := s.List(ctx, Page{Limit: 10})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 1 || len(all) != 1 {
		t.Fatalf("expected one stored transfer, got total=%d len=%d", total, len(all))
	}
	if all[0].Release.Status != transfer.StatusConfirmed {
		t.Errorf("expected updated release status, got %s", all[0].Release.Status)
	}
}

func TestTransferPGStore_ListOrderingAndPaging(t *testing.T) {
	ctx, s := setupStore(t)

	base := time.Now().Add(-time.Hour)
	for i := byte(1); i <= 5; i++ {
		if err := s.Save(ctx, newSnapshot(hash(i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save(%d) failed: %v", i, err)
		}
	}

	open, err := s.ListOpen(ctx, 2)
	if err != nil {
		t.Fatalf("ListOpen() failed: %v", err)
	}
	if len(open) != 2 || open[0].ID != hash(5) || open[1].ID != hash(4) {
		t.Fatalf("expected the two most recent transfers, got %d", len(open))
	}

	page, total, err := s.List(ctx, Page{Offset: 4, Limit: 2})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(page) != 1 || page[0].ID != hash(1) {
		t.Errorf("expected the oldest transfer on the last page, got %d entries", len(page))
	}

	none, total, err := s.List(ctx, Page{Route: "tvm_evm"})
	if err != nil {
		t.Fatalf("List() with route failed: %v", err)
	}
	if total != 0 || len(none) != 0 {
		t.Errorf("expected no transfers on another route, got %d", total)
	}
}

func TestTransferPGStore_Delete(t *testing.T) {
	ctx, s := setupStore(t)

	snap := newSnapshot(hash(9), time.Now())
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	key := string(evmRef) + "/" + string(tvmRef) + "/" + snap.ID
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrTransferNotFound) {
		t.Errorf("expected ErrTransferNotFound after delete, got %v", err)
	}
}
