package apiclient

import (
	"context"
	"fmt"

	"cpmsync/internal/models"

	"github.com/rs/zerolog/log"
)

func (c *Client) Zones(ctx context.Context) ([]models.Zone, error) {
	var out collection[models.Zone]
	if err := c.getWithRetry(ctx, "zones", "zones", &out); err != nil {
		return nil, err
	}
	return keepValid("zones", []models.Zone(out)), nil
}

func (c *Client) ChargingStations(ctx context.Context) ([]models.ChargingStation, error) {
	var out collection[models.ChargingStation]
	if err := c.getWithRetry(ctx, "charging-stations", "charging-stations", &out); err != nil {
		return nil, err
	}
	return keepValid("charging-stations", []models.ChargingStation(out)), nil
}

func (c *Client) Connectors(ctx context.Context) ([]models.Connector, error) {
	var out collection[models.Connector]
	if err := c.getWithRetry(ctx, "connectors", "connectors", &out); err != nil {
		return nil, err
	}
	return keepValid("connectors", []models.Connector(out)), nil
}

// Equipment returns metering equipment with nested zones and live values.
func (c *Client) Equipment(ctx context.Context) ([]models.Equipment, error) {
	var out collection[models.Equipment]
	if err := c.getWithRetry(ctx, "equipments", "equipments?values=1", &out); err != nil {
		return nil, err
	}
	return keepValid("equipments", []models.Equipment(out)), nil
}

// Transactions follows the paginated listing until the last page or the
// configured page limit.
func (c *Client) Transactions(ctx context.Context) ([]models.Transaction, error) {
	var all []models.Transaction
	for page := 1; ; page++ {
		var p models.TransactionPage
		if err := c.getWithRetry(ctx, "transactions", fmt.Sprintf("transactions?page=%d", page), &p); err != nil {
			return nil, err
		}
		all = append(all, p.Data...)

		if !p.HasNext() {
			break
		}
		if c.MaxTransactionPages > 0 && page >= c.MaxTransactionPages {
			log.Debug().
				Str("component", "apiclient").
				Int("pages", page).
				Int("last_page", p.LastPage).
				Msg("Transaction page limit reached")
			break
		}
	}
	return keepValid("transactions", all), nil
}
