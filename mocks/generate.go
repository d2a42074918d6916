package mocks

//go:generate mockgen -destination=./mock_provider.go -package=mocks github.com/rxtech-lab/argo-replay/pkg/marketdata/provider Provider
//go:generate mockgen -destination=./mock_conversion.go -package=mocks github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/venue ConversionStrategy
