package ingestion

import (
	"fmt"

	"credit-observer/src/config"
	"credit-observer/src/data_source/alphavantage"
	"credit-observer/src/data_source/newsapi"
	"credit-observer/src/data_source/secedgar"
	"credit-observer/src/data_source/yahoo"
	"credit-observer/src/interfaces"
	"credit-observer/src/models"
)

// NewConnector builds the connector selected by src.Type and installs its
// rate limit on net. Sources without a symbol list track every configured
// issuer.
func NewConnector(cfg *models.MConfig, src models.MSourceConfig, net interfaces.INetworkManager) (interfaces.IDataSource, error) {
	if len(src.Symbols) == 0 {
		for _, is := range cfg.Issuers {
			src.Symbols = append(src.Symbols, is.Symbol)
		}
	}

	var ds interfaces.IDataSource
	switch src.Type {
	case config.SourceYahooChart:
		ds = yahoo.NewYahooChartSource(cfg, src, net)
	case config.SourceYahooFundamentals:
		ds = yahoo.NewYahooFundamentalsSource(cfg, src, net)
	case config.SourceAlphaVantage:
		ds = alphavantage.NewAlphaVantageSource(cfg, src, net)
	case config.SourceNewsAPI:
		ds = newsapi.NewNewsAPISource(cfg, src, net)
	case config.SourceSECEdgar:
		ds = secedgar.NewSECEdgarSource(cfg, src, net)
	default:
		return nil, fmt.Errorf("unknown source type %q for %s", src.Type, src.Name)
	}

	if src.RequestsPerSecond > 0 {
		net.SetRateLimit(src.Name, src.RequestsPerSecond, src.Burst)
	}
	return ds, nil
}

// NewConnectors builds every enabled source in configuration order.
func NewConnectors(cfg *models.MConfig, net interfaces.INetworkManager) ([]interfaces.IDataSource, error) {
	var out []interfaces.IDataSource
	for _, src := range cfg.Ingestion.Sources {
		if !src.Enabled {
			continue
		}
		ds, err := NewConnector(cfg, src, net)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, nil
}
