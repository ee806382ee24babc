package collection

import (
	"github.com/DJune12138/Collection3/internal/adapters/sdk"
	"github.com/DJune12138/Collection3/internal/app/engine"
	"github.com/DJune12138/Collection3/internal/app/plugin"
	"github.com/DJune12138/Collection3/internal/app/registry"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Protocol values exchanged between the engine and business plugins.
type (
	Request  = domain.Request
	Response = domain.Response
	Item     = domain.Item
	Output   = domain.Output
	// Stream is the lazy sequence every callback returns.
	Stream = domain.Stream
	Way    = domain.Way
	Params = domain.Params
)

// Plugin contracts.
type (
	Builder              = ports.Builder
	Pipeline             = ports.Pipeline
	BuilderMiddleware    = ports.BuilderMiddleware
	DownloaderMiddleware = ports.DownloaderMiddleware
	Callbacks            = ports.Callbacks
	SeedFunc             = ports.SeedFunc
	EndRequester         = ports.EndRequester
	AutoCollector        = ports.AutoCollector
	Validator            = ports.Validator
)

// Base implementations businesses embed.
type (
	BaseBuilder  = plugin.BaseBuilder
	BasePipeline = plugin.BasePipeline
	PassThrough  = plugin.PassThrough
	StampParams  = plugin.StampParams
	SeedMode     = plugin.SeedMode
)

// Registration.
type (
	Catalog         = registry.Catalog
	Descriptor      = registry.Descriptor
	Selection       = registry.Selection
	BusinessOptions = registry.BusinessOptions
)

// Collaborators that can be swapped through RuntimeOption values.
type (
	Scheduler     = ports.Scheduler
	Downloader    = ports.Downloader
	Driver        = ports.Driver
	Observability = ports.Observability
	Field         = ports.Field
	Alert         = ports.Alert
	Alerter       = ports.Alerter
	Policy        = ports.Policy
	// Callables names the functions reachable through the sdk way.
	Callables = sdk.Callables
)

// Report summarizes a finished run.
type Report = engine.Report

// Error is a classified failure; Kind says which class.
type (
	Error = domain.Error
	Kind  = domain.Kind
)

const (
	WayWeb   = domain.WayWeb
	WayDB    = domain.WayDB
	WayShell = domain.WayShell
	WayFile  = domain.WayFile
	WaySDK   = domain.WaySDK
	WayTest  = domain.WayTest

	SeedStatic = plugin.SeedStatic
	SeedOnce   = plugin.SeedOnce
	SeedNone   = plugin.SeedNone
)

// Failure kinds.
const (
	KindUnclassified      = domain.KindUnclassified
	KindContractViolation = domain.KindContractViolation
	KindTypeMismatch      = domain.KindTypeMismatch
	KindArityError        = domain.KindArityError
	KindUnknownCallback   = domain.KindUnknownCallback
	KindUnknownParameter  = domain.KindUnknownParameter
	KindMissingParameter  = domain.KindMissingParameter
	KindValidationFailure = domain.KindValidationFailure
)

// Constructors and stream helpers.
var (
	NewRequest     = domain.NewRequest
	NewItem        = domain.NewItem
	NewBaseBuilder = plugin.NewBaseBuilder
	NewCatalog     = registry.NewCatalog
	NewCallables   = sdk.NewCallables
	ParseSelection = registry.ParseSelection
	Retry          = plugin.Retry
	Serialize      = plugin.Serialize

	Yield    = domain.Yield
	Emit     = domain.Emit
	Of       = domain.Of
	Empty    = domain.Empty
	Requests = domain.Requests
	Items    = domain.Items
	KindOf   = domain.KindOf
)

// Bootstrap errors returned by NewRuntime.
var (
	ErrNoBusinesses = engine.ErrNoBusinesses
	ErrNoScheduler  = engine.ErrNoScheduler
	ErrNoDownloader = engine.ErrNoDownloader
)
