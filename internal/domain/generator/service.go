package generator

import (
	"context"
	"fmt"

	"commesse/internal/core/apperror"
	"commesse/internal/core/numerator"
	"commesse/internal/domain/ddt"
	"commesse/internal/domain/guard"
	"commesse/pkg/logger"
)

// Notifier receives issued documents. Notify must not block and must not fail the caller.
type Notifier interface {
	Notify(ctx context.Context, n ddt.Notice)
}

// Service is the single issuing entry point shared by the HTTP handler,
// the automatic archival trigger and the CLI.
type Service struct {
	gen             *Generator
	notifier        Notifier
	requireOutbound bool
	log             *logger.Logger
}

// ServiceConfig configures business rules applied before generation.
type ServiceConfig struct {
	// RequireOutbound rejects an inbound note when MATERIALI holds no outbound note.
	RequireOutbound bool
}

// NewService creates a Service. notifier may be nil.
func NewService(gen *Generator, notifier Notifier, cfg ServiceConfig, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		gen:             gen,
		notifier:        notifier,
		requireOutbound: cfg.RequireOutbound,
		log:             log.WithComponent("ddt-service"),
	}
}

// Generator exposes the underlying generator for previews and raw counter access.
func (s *Service) Generator() *Generator { return s.gen }

// Issue applies the business duplicate rules and then generates with advance=true.
func (s *Service) Issue(ctx context.Context, folder string, class numerator.Class) (*Result, error) {
	if class == numerator.Entrata {
		if err := s.checkInbound(folder); err != nil {
			s.log.WithContext(ctx).Infow("issue rejected", "folder", folder, "class", class, "error", err)
			return nil, err
		}
	}

	res, err := s.gen.Generate(ctx, Request{Folder: folder, Class: class, Advance: true})
	if err != nil {
		return nil, err
	}
	if res.Created && res.Notice != nil && s.notifier != nil {
		s.notifier.Notify(ctx, *res.Notice)
	}
	return res, nil
}

// checkInbound rejects an inbound note when one already exists for the order
// on any date, or when no outbound note has been issued yet.
func (s *Service) checkInbound(folder string) error {
	abs, err := ResolveFolder(folder)
	if err != nil {
		return err
	}
	materials := ddt.MaterialsPath(abs)

	meta, err := ddt.LoadMetadata(abs)
	if err != nil {
		meta = ddt.Metadata{}
	}
	code := ddt.OrderCode(abs, meta)

	found, existing, err := guard.HasAny(materials, code, numerator.Entrata)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if found {
		return apperror.NewDuplicateDetected(numerator.Entrata.String(), code).WithDetail("file", existing)
	}

	if s.requireOutbound {
		ok, err := guard.HasOutbound(materials)
		if err != nil {
			return apperror.NewInternal(err)
		}
		if !ok {
			msg := fmt.Sprintf("no outbound delivery note found in %s", ddt.MaterialsDir)
			return apperror.NewPreconditionFailed(msg).WithDetail("folder", folder)
		}
	}
	return nil
}
