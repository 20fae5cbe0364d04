package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/application/usecase"
	"github.com/jhoicas/Facturacion-CFDI/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Documents    *billing.DocumentUseCase
	Stamping     *billing.StampingCoordinator
	Cancellation *billing.CancellationCoordinator
	Dispatcher   *billing.StampDispatcher
	PDF          *billing.PDFUseCase
	CustomerUC   *billing.CustomerUseCase
	CompanyUC    *usecase.CompanyUseCase
	JWTSecret    string
	JWTIssuer    string // vacío: no se valida el emisor
}

// Router registra las rutas de la API. Todas requieren Bearer Token; el tenant
// es el company_id del token.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(jwt.NewVerifier(deps.JWTSecret, deps.JWTIssuer)))

	anyRole := RequireRole(RoleAdmin, RoleBiller, RoleReadOnly)
	writers := RequireRole(RoleAdmin, RoleBiller)

	// Company (perfil del emisor)
	if deps.CompanyUC != nil {
		companyHandler := NewCompanyHandler(deps.CompanyUC)
		api.Get("/company", anyRole, companyHandler.Get)
		api.Patch("/company", RequireRole(RoleAdmin), companyHandler.Update)
	}

	// Customers (receptores)
	customers := api.Group("/customers")
	customerHandler := NewCustomerHandler(deps.CustomerUC)
	customers.Post("/", writers, customerHandler.Create)
	customers.Get("/", anyRole, customerHandler.List)
	customers.Get("/:id", anyRole, customerHandler.GetByID)

	// Fiscal documents (CFDI)
	docs := api.Group("/fiscal-documents")
	docHandler := NewFiscalDocumentHandler(deps.Documents, deps.Stamping, deps.Cancellation, deps.Dispatcher, deps.PDF)
	docs.Post("/", writers, docHandler.Create)
	docs.Get("/", anyRole, docHandler.List)
	docs.Get("/:id", anyRole, docHandler.GetByID)
	docs.Put("/:id", writers, docHandler.Update)
	docs.Get("/:id/status", anyRole, docHandler.GetStatus)
	docs.Get("/:id/pdf", anyRole, docHandler.DownloadPDF)
	docs.Post("/:id/stamp", writers, docHandler.Stamp)
	docs.Post("/:id/cancel", writers, docHandler.Cancel)
	docs.Post("/:id/receiver-response", writers, docHandler.ReceiverResponse)
}
