package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/application/usecase"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/cfdi"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
	"github.com/jhoicas/Facturacion-CFDI/internal/infrastructure/memory"
	"github.com/jhoicas/Facturacion-CFDI/internal/infrastructure/pac"
	infrapdf "github.com/jhoicas/Facturacion-CFDI/internal/infrastructure/pdf"
	"github.com/jhoicas/Facturacion-CFDI/internal/infrastructure/postgres"
	"github.com/jhoicas/Facturacion-CFDI/internal/infrastructure/signer"
	"github.com/jhoicas/Facturacion-CFDI/internal/infrastructure/sqlite"
	httpRouter "github.com/jhoicas/Facturacion-CFDI/internal/interfaces/http"
	"github.com/jhoicas/Facturacion-CFDI/pkg/config"
	"github.com/jhoicas/Facturacion-CFDI/pkg/logger"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// devTenantID empresa de demostración para los drivers sqlite y memory; el
// company_id de los JWT de desarrollo debe coincidir.
const devTenantID = "00000000-0000-0000-0000-000000000001"

// stores adaptadores de persistencia según STORE_DRIVER.
type stores struct {
	documents repository.DocumentStore
	companies repository.CompanyRepository
	customers repository.CustomerRepository
	numbers   billing.NumberSequence
	orders    billing.OrderSource
	catalogs  sat.CatalogLookup
	leaser    billing.Leaser
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.Store.Driver).
		Str("cfdi_env", cfg.CFDI.Env).
		Msg("iniciando aplicación")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("inicializar persistencia")
	}
	defer st.close()

	sealer, err := loadSealer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("cargar certificado de sello digital")
	}

	authority, err := pac.New(pac.Config{
		Env:         cfg.CFDI.Env,
		URL:         cfg.CFDI.PACURL,
		Username:    cfg.CFDI.PACUser,
		Password:    cfg.CFDI.PACPassword,
		ProviderRFC: cfg.CFDI.PACProviderRFC,
		Timeout:     cfg.CFDI.AttemptTimeout,
		ZipPayload:  cfg.CFDI.PACZip,
	}, sealer.CertificateB64(), log.Component("pac"))
	if err != nil {
		log.Fatal().Err(err).Msg("configurar PAC")
	}

	billingCfg := billing.Config{
		MaxAttempts:       cfg.CFDI.MaxAttempts,
		BackoffBase:       cfg.CFDI.BackoffBase,
		BackoffMax:        cfg.CFDI.BackoffMax,
		AttemptTimeout:    cfg.CFDI.AttemptTimeout,
		CancelGraceWindow: cfg.CFDI.CancelGraceWindow,
		ReconcileInterval: cfg.CFDI.ReconcileInterval,
		ReconcileBatch:    cfg.CFDI.ReconcileBatch,
		ReconcileWorkers:  cfg.CFDI.ReconcileWorkers,
	}
	validator := cfdi.NewValidator(st.catalogs)

	stamping := billing.NewStampingCoordinator(
		st.documents, authority, sealer, validator, st.leaser, billingCfg, log.Component("stamping"),
	)
	cancellation := billing.NewCancellationCoordinator(
		st.documents, authority, st.leaser, billingCfg, log.Component("cancellation"),
	)
	documentUC := billing.NewDocumentUseCase(
		st.documents, st.companies, st.customers, st.orders, st.numbers, validator, log.Component("documents"),
	)
	dispatcher := billing.NewStampDispatcher(stamping, billingCfg, log.Component("dispatcher"))
	reconciler := billing.NewReconciler(st.documents, stamping, cancellation, billingCfg, log.Component("reconciler"))

	// PDF: representación impresa del CFDI con QR de verificación del SAT
	pdfUC := billing.NewPDFUseCase(st.documents, st.companies, infrapdf.NewMarotoPDFGenerator())
	customerUC := billing.NewCustomerUseCase(st.customers)
	companyUC := usecase.NewCompanyUseCase(st.companies)

	reconcilerDone := make(chan struct{})
	go func() {
		defer close(reconcilerDone)
		if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("conciliador finalizado")
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturación CFDI API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "cfdi_env": cfg.CFDI.Env})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Documents:    documentUC,
		Stamping:     stamping,
		Cancellation: cancellation,
		Dispatcher:   dispatcher,
		PDF:          pdfUC,
		CustomerUC:   customerUC,
		CompanyUC:    companyUC,
		JWTSecret:    cfg.JWT.Secret,
		JWTIssuer:    cfg.JWT.Issuer,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	// Los timbrados asíncronos en curso terminan antes de cerrar la base; lo que
	// quede en PENDING lo retoma el conciliador en el siguiente arranque.
	dispatcher.Wait()
	stop()
	<-reconcilerDone

	log.Info().Msg("aplicación detenida")
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		if err := postgres.NewTxRunner(pool).Run(ctx, func(q postgres.Querier) error {
			return postgres.Migrate(ctx, q)
		}); err != nil {
			pool.Close()
			return nil, err
		}
		return &stores{
			documents: postgres.NewDocumentStore(pool),
			companies: postgres.NewCompanyRepository(pool),
			customers: postgres.NewCustomerRepository(pool),
			numbers:   postgres.NewNumberSequence(pool),
			orders:    postgres.NewOrderSource(pool),
			catalogs:  postgres.NewCatalogLookup(pool),
			leaser:    postgres.NewAdvisoryLeaser(pool, log.Component("leaser")),
			close:     pool.Close,
		}, nil

	case config.StoreDriverSQLite:
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		companies, customers := devParties()
		return &stores{
			documents: sqlite.NewDocumentStore(db),
			companies: companies,
			customers: customers,
			numbers:   sqlite.NewNumberSequence(db),
			catalogs:  sat.NewStaticCatalog(),
			leaser:    billing.NewLocalLeaser(),
			close: func() {
				if err := db.Close(); err != nil {
					log.Error().Err(err).Msg("cerrar SQLite")
				}
			},
		}, nil

	default:
		log.Warn().Msg("persistencia en memoria: los documentos se pierden al reiniciar")
		companies, customers := devParties()
		return &stores{
			documents: memory.NewDocumentStore(),
			companies: companies,
			customers: customers,
			numbers:   memory.NewNumberSequence(),
			catalogs:  sat.NewStaticCatalog(),
			leaser:    billing.NewLocalLeaser(),
			close:     func() {},
		}, nil
	}
}

// devParties emisor de pruebas del SAT para los drivers sin tabla de empresas.
func devParties() (*memory.CompanyRepo, *memory.CustomerRepo) {
	now := time.Now()
	companies := memory.NewCompanyRepo(entity.Company{
		ID:           devTenantID,
		Name:         "ESCUELA KEMPER URGATE",
		RFC:          "EKU9003173C9",
		FiscalRegime: "601",
		PostalCode:   "42501",
		Series:       "A",
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	return companies, memory.NewCustomerRepo()
}

// loadSealer carga el CSD configurado. En dev sin certificado se usa uno efímero.
func loadSealer(cfg *config.Config) (*signer.CSDSealer, error) {
	if cfg.CFDI.CertPath == "" {
		if cfg.CFDI.Env != pac.EnvDev {
			return nil, errors.New("CFDI_CERT_PATH es obligatorio fuera de dev")
		}
		cert, err := signer.Ephemeral("EKU9003173C9", "ESCUELA KEMPER URGATE")
		if err != nil {
			return nil, err
		}
		return signer.NewCSDSealer(cert)
	}
	cert, err := signer.Load(cfg.CFDI.CertPath, cfg.CFDI.KeyPath, cfg.CFDI.CertPassword)
	if err != nil {
		return nil, err
	}
	return signer.NewCSDSealer(cert)
}
