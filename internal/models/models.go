// Package models holds the records returned by the remote charging API.
// Unknown fields are ignored; Validate rejects records without an identity.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrMissingIdentity = errors.New("record has no identity")

type Zone struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	DynamicError   int      `json:"dynamicError"`
	EquipmentID    *int     `json:"equipmentId"`
	DynamicLimitL1 *float64 `json:"dynamicLimitL1"`
	DynamicLimitL2 *float64 `json:"dynamicLimitL2"`
	DynamicLimitL3 *float64 `json:"dynamicLimitL3"`
	StaticLimitL1  *float64 `json:"staticLimitL1"`
	StaticLimitL2  *float64 `json:"staticLimitL2"`
	StaticLimitL3  *float64 `json:"staticLimitL3"`
	EnergyPrice    *float64 `json:"energyPrice"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
}

func (z Zone) Validate() error {
	if strings.TrimSpace(z.Name) == "" {
		return fmt.Errorf("zone %d: %w", z.ID, ErrMissingIdentity)
	}
	return nil
}

type ChargingStation struct {
	Identity                           string   `json:"identity"`
	Name                               string   `json:"name"`
	Connected                          bool     `json:"connected"`
	OperatorURL                        *string  `json:"operatorUrl"`
	OperatorIdentity                   *string  `json:"operatorIdentity"`
	OperatorConnected                  int      `json:"operatorConnected"`
	OperatorDisconnectedPolicy         string   `json:"operatorDisconnectedPolicy"`
	OperatorHeartbeatMinimumInterval   int      `json:"operatorHeartbeatMinimumInterval"`
	OperatorMetervaluesMinimumInterval int      `json:"operatorMetervaluesMinimumInterval"`
	ChargePointVendor                  string   `json:"chargePointVendor"`
	ChargePointModel                   string   `json:"chargePointModel"`
	ChargeBoxSerialNumber              string   `json:"chargeBoxSerialNumber"`
	ChargePointSerialNumber            string   `json:"chargePointSerialNumber"`
	FirmwareVersion                    string   `json:"firmwareVersion"`
	ICCID                              string   `json:"iccid"`
	IMSI                               string   `json:"imsi"`
	MeterSerialNumber                  string   `json:"meterSerialNumber"`
	MeterType                          string   `json:"meterType"`
	IPAddress                          string   `json:"ipAddress"`
	ZoneID                             int      `json:"zoneId"`
	VIP                                bool     `json:"vip"`
	CurrentLimit                       *float64 `json:"currentLimit"`
	Version                            string   `json:"version"`
	LastHeartbeat                      string   `json:"lastHeartbeat"`
	CreatedAt                          string   `json:"createdAt"`
	UpdatedAt                          string   `json:"updatedAt"`
	SupportedFeatures                  string   `json:"supportedFeatures"`
	BootMetervalue                     bool     `json:"bootMetervalue"`
}

func (c ChargingStation) Validate() error {
	if strings.TrimSpace(c.Identity) == "" {
		return fmt.Errorf("charging station %q: %w", c.Name, ErrMissingIdentity)
	}
	return nil
}

// LastHeartbeatMillis returns the heartbeat as a ms epoch, or 0 when the
// station has never reported one.
func (c ChargingStation) LastHeartbeatMillis() int64 {
	t, ok := parseTimestamp(c.LastHeartbeat)
	if !ok {
		return 0
	}
	return t.UnixMilli()
}

type Connector struct {
	ID                      int    `json:"id"`
	ChargingStationIdentity string `json:"chargingStationIdentity"`
	ConnectorID             int    `json:"connectorId"`
	Status                  string `json:"status"`
	ErrorCode               string `json:"errorCode"`
	UpdatedAt               string `json:"updatedAt"`
}

func (c Connector) Validate() error {
	if strings.TrimSpace(c.ChargingStationIdentity) == "" {
		return fmt.Errorf("connector %d: %w", c.ID, ErrMissingIdentity)
	}
	return nil
}

type Product struct {
	ID             int    `json:"id"`
	Manufacturer   string `json:"manufacturer"`
	Reference      string `json:"reference"`
	VariableL1     int    `json:"variableL1"`
	VariableL2     int    `json:"variableL2"`
	VariableL3     int    `json:"variableL3"`
	VariableEnergy int    `json:"variableEnergy"`
	Locked         bool   `json:"locked"`
}

type Variable struct {
	ID        int     `json:"id"`
	ProductID int     `json:"productId"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Unit      *string `json:"unit"`
	LocalName string  `json:"localName"`
}

type Measurement struct {
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit"`
	Normalized *float64 `json:"normalized"`
}

type Currents struct {
	L1 Measurement `json:"l1"`
	L2 Measurement `json:"l2"`
	L3 Measurement `json:"l3"`
}

type EquipmentValues struct {
	Currents *Currents    `json:"currents"`
	Energy   *Measurement `json:"energy"`
}

type Equipment struct {
	ID        int              `json:"id"`
	Name      string           `json:"name"`
	ProductID int              `json:"productId"`
	IPAddress string           `json:"ipAddress"`
	Port      int              `json:"port"`
	SlaveID   int              `json:"slaveId"`
	Connected bool             `json:"connected"`
	Error     bool             `json:"error"`
	CreatedAt string           `json:"createdAt"`
	UpdatedAt string           `json:"updatedAt"`
	Product   *Product         `json:"product"`
	Variables []Variable       `json:"variables"`
	Zones     []Zone           `json:"zones"`
	Values    *EquipmentValues `json:"values"`
}

func (e Equipment) Validate() error {
	if e.ID == 0 || strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("equipment %d %q: %w", e.ID, e.Name, ErrMissingIdentity)
	}
	return nil
}

// ZoneIDs returns the ids of the zones the equipment meters, comma-joined.
func (e Equipment) ZoneIDs() string {
	ids := make([]string, 0, len(e.Zones))
	for _, z := range e.Zones {
		ids = append(ids, strconv.Itoa(z.ID))
	}
	return strings.Join(ids, ",")
}

// Reading is one named live value of an equipment.
type Reading struct {
	Name  string
	Value *float64
	Unit  string
}

// Readings lists the current and energy values in endpoint order. Values the
// equipment did not report are nil.
func (e Equipment) Readings() []Reading {
	var cur Currents
	var energy Measurement
	if e.Values != nil {
		if e.Values.Currents != nil {
			cur = *e.Values.Currents
		}
		if e.Values.Energy != nil {
			energy = *e.Values.Energy
		}
	}
	return []Reading{
		{Name: "Current_L1", Value: cur.L1.Value, Unit: cur.L1.Unit},
		{Name: "Current_L2", Value: cur.L2.Value, Unit: cur.L2.Unit},
		{Name: "Current_L3", Value: cur.L3.Value, Unit: cur.L3.Unit},
		{Name: "Energy_Consumption", Value: energy.Value, Unit: energy.Unit},
	}
}

type Transaction struct {
	ID                      int     `json:"id"`
	ChargingStationIdentity string  `json:"chargingStationIdentity"`
	ConnectorID             int     `json:"connectorId"`
	Local                   bool    `json:"local"`
	VIP                     bool    `json:"vip"`
	TransactionID           int     `json:"transactionId"`
	RewriteTransactionID    *int    `json:"rewriteTransactionId"`
	TagID                   string  `json:"tagId"`
	Reason                  *string `json:"reason"`
	MeterStart              float64 `json:"meterStart"`
	MeterValue              float64 `json:"meterValue"`
	ReservationID           *int    `json:"reservationId"`
	TerminatedAt            *string `json:"terminatedAt"`
	Amount                  string  `json:"amount"`
	CreatedAt               string  `json:"createdAt"`
	UpdatedAt               string  `json:"updatedAt"`
}

func (t Transaction) Validate() error {
	if t.TransactionID == 0 {
		return fmt.Errorf("transaction %d: %w", t.ID, ErrMissingIdentity)
	}
	if strings.TrimSpace(t.ChargingStationIdentity) == "" {
		return fmt.Errorf("transaction %d has no charging station: %w", t.TransactionID, ErrMissingIdentity)
	}
	return nil
}

// Key is the ticket name for the transaction.
func (t Transaction) Key() string { return strconv.Itoa(t.TransactionID) }

func (t Transaction) Terminated() bool {
	return t.TerminatedAt != nil && *t.TerminatedAt != ""
}

func (t Transaction) TerminatedAtString() string {
	if t.TerminatedAt == nil {
		return ""
	}
	return *t.TerminatedAt
}

func (t Transaction) ReasonString() string {
	if t.Reason == nil {
		return ""
	}
	return *t.Reason
}

// TransactionPage is one page of the paginated transactions listing.
type TransactionPage struct {
	CurrentPage int           `json:"current_page"`
	Data        []Transaction `json:"data"`
	LastPage    int           `json:"last_page"`
	NextPageURL *string       `json:"next_page_url"`
	PerPage     int           `json:"per_page"`
	Total       int           `json:"total"`
}

// HasNext reports whether another page follows this one.
func (p TransactionPage) HasNext() bool {
	if p.NextPageURL == nil || *p.NextPageURL == "" {
		return false
	}
	return p.LastPage == 0 || p.CurrentPage < p.LastPage
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
