package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/gas"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

const serviceName = "TrackerService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the tracker Service.
// Reads log at debug level, state-changing calls at info.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger.With(zap.String("service", serviceName)),
	}
}

func (ls *logService) done(method string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("method", method), zap.Duration("duration", time.Since(start)))
	if err != nil {
		ls.logger.Error(method+" failed", append(fields, zap.Error(err))...)
		return
	}
	ls.logger.Info(method+" completed", fields...)
}

func refFields(ref Ref) []zap.Field {
	return []zap.Field{
		zap.String("source", ref.Source),
		zap.String("destination", ref.Destination),
		zap.String("id", ref.ID),
	}
}

func (ls *logService) Networks(ctx context.Context) []network.Network {
	return ls.svc.Networks(ctx)
}

func (ls *logService) Transfer(ctx context.Context, ref Ref) (*transfer.Snapshot, error) {
	snap, err := ls.svc.Transfer(ctx, ref)
	if err != nil {
		ls.logger.Debug("Transfer lookup failed", append(refFields(ref), zap.Error(err))...)
	}
	return snap, err
}

func (ls *logService) History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error) {
	return ls.svc.History(ctx, req)
}

// Act wraps the service method with logging
func (ls *logService) Act(ctx context.Context, req *ActionRequest) (resp *ActionResponse, err error) {
	start := time.Now()
	fields := append(refFields(req.Ref), zap.String("action", string(req.Action)))
	ls.logger.Info("Act started", fields...)

	defer func() {
		if err == nil {
			fields = append(fields, zap.Bool("accepted", resp.Accepted))
		}
		ls.done("Act", start, err, fields...)
	}()

	return ls.svc.Act(ctx, req)
}

// Dispose wraps the service method with logging
func (ls *logService) Dispose(ctx context.Context, ref Ref) (err error) {
	start := time.Now()
	defer func() { ls.done("Dispose", start, err, refFields(ref)...) }()
	return ls.svc.Dispose(ctx, ref)
}

// Submit wraps the service method with logging
func (ls *logService) Submit(ctx context.Context, req *SubmitRequest) (snap *transfer.Snapshot, err error) {
	start := time.Now()
	fields := append(refFields(req.Ref), zap.String("token", req.Token))
	ls.logger.Info("Submit started", fields...)

	defer func() {
		if err == nil {
			fields = append(fields, zap.String("route", snap.Route))
		}
		ls.done("Submit", start, err, fields...)
	}()

	return ls.svc.Submit(ctx, req)
}

func (ls *logService) Estimate(ctx context.Context, req EstimateRequest) (*gas.Estimate, error) {
	return ls.svc.Estimate(ctx, req)
}

// RefreshAssets wraps the service method with logging
func (ls *logService) RefreshAssets(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { ls.done("RefreshAssets", start, err) }()
	return ls.svc.RefreshAssets(ctx)
}

func (ls *logService) Watch(ctx context.Context, ref Ref) (<-chan transfer.Snapshot, func(), error) {
	updates, stop, err := ls.svc.Watch(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	ls.logger.Debug("Watch started", refFields(ref)...)
	return updates, func() {
		stop()
		ls.logger.Debug("Watch stopped", refFields(ref)...)
	}, nil
}
