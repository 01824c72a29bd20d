package services

import (
	"strconv"

	"cpmsync/internal/models"
)

const (
	zoneColor = "#ff0000"
	zoneIcon  = "local_parking"

	// Retention window, in days, of endpoint value history.
	historyMaxDays = "14"

	defaultCategory = "default"
)

// Attribute values are persisted as strings. Zero and absent values become
// the empty string so that every declared key is always written.

func intAttr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func floatAttr(v *float64) string {
	if v == nil || *v == 0 {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func zoneAttributes(z models.Zone) map[string]string {
	return map[string]string{
		"id":             intAttr(z.ID),
		"dynamicLimitL1": floatAttr(z.DynamicLimitL1),
		"dynamicLimitL2": floatAttr(z.DynamicLimitL2),
		"dynamicLimitL3": floatAttr(z.DynamicLimitL3),
		"staticLimitL1":  floatAttr(z.StaticLimitL1),
		"staticLimitL2":  floatAttr(z.StaticLimitL2),
		"staticLimitL3":  floatAttr(z.StaticLimitL3),
		"energyPrice":    floatAttr(z.EnergyPrice),
	}
}

func stationAttributes(cs models.ChargingStation) map[string]string {
	return map[string]string{
		"identity":                           cs.Identity,
		"vip":                                strconv.FormatBool(cs.VIP),
		"zoneId":                             intAttr(cs.ZoneID),
		"operatorDisconnectedPolicy":         cs.OperatorDisconnectedPolicy,
		"operatorHeartbeatMinimumInterval":   intAttr(cs.OperatorHeartbeatMinimumInterval),
		"operatorMetervaluesMinimumInterval": intAttr(cs.OperatorMetervaluesMinimumInterval),
		"chargePointVendor":                  cs.ChargePointVendor,
		"chargePointModel":                   cs.ChargePointModel,
		"chargeBoxSerialNumber":              cs.ChargeBoxSerialNumber,
		"chargePointSerialNumber":            cs.ChargePointSerialNumber,
		"firmwareVersion":                    cs.FirmwareVersion,
		"supportedFeatures":                  cs.SupportedFeatures,
	}
}

func equipmentAttributes(e models.Equipment) map[string]string {
	return map[string]string{
		"name":      e.Name,
		"id":        intAttr(e.ID),
		"productId": intAttr(e.ProductID),
		"zoneIds":   e.ZoneIDs(),
	}
}

// ticketAttributes is the full metadata written when a ticket is created.
func ticketAttributes(tx models.Transaction) map[string]string {
	return map[string]string{
		"name":                    tx.Key(),
		"tagId":                   tx.TagID,
		"chargeUnixId":            strconv.Itoa(tx.ID),
		"chargingStationIdentity": tx.ChargingStationIdentity,
		"connectorId":             strconv.Itoa(tx.ConnectorID),
		"meterStart":              strconv.FormatFloat(tx.MeterStart, 'f', -1, 64),
		"meterValue":              strconv.FormatFloat(tx.MeterValue, 'f', -1, 64),
		"amount":                  tx.Amount,
		"startedAt":               tx.CreatedAt,
		"terminatedAt":            tx.TerminatedAtString(),
		"reason":                  tx.ReasonString(),
	}
}

// ticketUpdateAttributes are the fields that change over a transaction's life.
func ticketUpdateAttributes(tx models.Transaction) map[string]string {
	return map[string]string{
		"meterValue":   strconv.FormatFloat(tx.MeterValue, 'f', -1, 64),
		"amount":       tx.Amount,
		"terminatedAt": tx.TerminatedAtString(),
		"reason":       tx.ReasonString(),
	}
}

// Connector status codes written to Connector_<id>_Status endpoints.
var connectorStatusCodes = map[string]int{
	"Unknown":       0,
	"Available":     1,
	"Preparing":     2,
	"Charging":      3,
	"SuspendedEV":   4,
	"SuspendedEVSE": 5,
	"Finishing":     6,
	"Unavailable":   7,
	"Faulted":       8,
	"Reserved":      9,
	"Offline":       10,
}

// ConnectorStatusCode maps a connector status to its numeric code. Unknown
// statuses map to 0.
func ConnectorStatusCode(status string) int {
	return connectorStatusCodes[status]
}

func connectorEndpointName(c models.Connector) string {
	return "Connector_" + strconv.Itoa(c.ID) + "_Status"
}
