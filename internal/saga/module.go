// Package saga provides the quote finalization domain module: the staged
// update pipeline that moves a quote from draft back to approved.
package saga

import (
	"salesops_backend/internal/events"
	apphttp "salesops_backend/internal/http"
	"salesops_backend/internal/saga/handler"
	"salesops_backend/internal/saga/repository"
	"salesops_backend/internal/saga/service"
	"salesops_backend/internal/storage"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the saga domain module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates the saga module with its required collaborators. Optional
// collaborators are wired afterwards with the Set* methods.
func NewModule(crmClient service.CRM, ordersClient service.Orders, freightClient service.Freight, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(crmClient, ordersClient, freightClient, log)
	h := handler.NewHandler(svc, val, log)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "saga"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// SetRunStore wires the persisted run audit log backed by the given pool and
// returns the repository so the scheduler worker can reuse it for cleanup.
func (m *Module) SetRunStore(pool *pgxpool.Pool) *repository.Repository {
	repo := repository.New(pool)
	m.service.SetRunStore(repo)
	return repo
}

// SetCopywriter wires the marketing copy generator.
func (m *Module) SetCopywriter(gen service.Copywriter) {
	m.service.SetCopywriter(gen)
}

// SetAssetStore wires object storage for schematic assets.
func (m *Module) SetAssetStore(svc storage.Service, bucket string) {
	m.service.SetAssetStore(svc, bucket)
}

// SetLocker wires the per-quote advisory lock.
func (m *Module) SetLocker(locker service.Locker) {
	m.service.SetLocker(locker)
}

// SetEventBus wires the domain event bus.
func (m *Module) SetEventBus(bus events.Bus) {
	m.service.SetEventBus(bus)
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	quotes := ctx.Protected.Group("/quotes")
	m.handler.RegisterRoutes(quotes)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
