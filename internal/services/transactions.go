package services

import (
	"context"
	"fmt"

	"cpmsync/internal/graph"
	"cpmsync/internal/identity"
	"cpmsync/internal/models"

	"github.com/rs/zerolog/log"
)

// TransactionDriver keeps one ticket per remote transaction in the workflow.
//
// A ticket is created in the pending step, or created and moved straight to
// the terminated step when the transaction has already ended. Tickets that
// exist in either step only get their mutable attributes refreshed.
type TransactionDriver struct {
	Store graph.Store
	Nodes RequiredNodes

	// Category and Label locate the station identity on typology nodes.
	Category string
	Label    string
}

func NewTransactionDriver(store graph.Store, nodes RequiredNodes, category string) *TransactionDriver {
	return &TransactionDriver{Store: store, Nodes: nodes, Category: category, Label: "identity"}
}

func (d *TransactionDriver) Reconcile(ctx context.Context, txs []models.Transaction) (Summary, error) {
	var sum Summary
	workflow := d.Nodes.WorkflowContext

	pending, err := d.Store.FindChildrenInContext(ctx, d.Nodes.PendingStep, workflow)
	if err != nil {
		return sum, err
	}
	terminated, err := d.Store.FindChildrenInContext(ctx, d.Nodes.TerminatedStep, workflow)
	if err != nil {
		return sum, err
	}
	pendingByName := identity.ByName(pending)
	tickets := identity.ByName(append(append([]graph.Node(nil), pending...), terminated...))

	stationNodes, err := d.Store.FindChildrenInContext(ctx, d.Nodes.StationGroup, d.Nodes.TypologyContext)
	if err != nil {
		return sum, err
	}
	stations, err := identity.Build(ctx, d.Store, stationNodes, d.Category, d.Label)
	if err != nil {
		return sum, err
	}

	for _, tx := range txs {
		station, ok := stations.Lookup(tx.ChargingStationIdentity)
		if !ok {
			log.Debug().
				Str("component", "transactions").
				Str("transaction", tx.Key()).
				Str("identity", tx.ChargingStationIdentity).
				Msg("Charging station not found, skipping ticket")
			sum.Skipped++
			continue
		}

		if ticket, ok := tickets.Lookup(tx.Key()); ok {
			if err := d.Store.UpsertAttributes(ctx, ticket, defaultCategory, ticketUpdateAttributes(tx)); err != nil {
				return sum, fmt.Errorf("update ticket %s: %w", tx.Key(), err)
			}
			if _, stillPending := pendingByName.Lookup(tx.Key()); stillPending && tx.Terminated() {
				// Tickets only change step when they are created.
				log.Warn().
					Str("component", "transactions").
					Str("transaction", tx.Key()).
					Msg("Transaction terminated but its ticket stays in the pending step")
			}
			sum.Updated++
			continue
		}

		ticket, err := d.createTicket(ctx, tx, station)
		if err != nil {
			return sum, err
		}
		tickets.Add(tx.Key(), ticket)
		if !tx.Terminated() {
			pendingByName.Add(tx.Key(), ticket)
		}
		sum.Created++
	}
	sum.log("transactions")
	return sum, nil
}

func (d *TransactionDriver) createTicket(ctx context.Context, tx models.Transaction, station graph.Node) (graph.Node, error) {
	workflow := d.Nodes.WorkflowContext
	ticket, err := d.Store.CreateNode(ctx, d.Nodes.PendingStep, workflow, graph.NodeSpec{
		Name:     tx.Key(),
		Type:     graph.TypeTicket,
		Relation: graph.RelStepTicket,
	})
	if err != nil {
		return graph.Node{}, fmt.Errorf("create ticket %s: %w", tx.Key(), err)
	}
	if err := d.Store.UpsertAttributes(ctx, ticket, defaultCategory, ticketAttributes(tx)); err != nil {
		return graph.Node{}, fmt.Errorf("ticket %s attributes: %w", tx.Key(), err)
	}
	if err := d.Store.AddChild(ctx, station, ticket, graph.RelHasTicket, graph.Node{}); err != nil {
		return graph.Node{}, fmt.Errorf("link ticket %s to %q: %w", tx.Key(), station.Name, err)
	}
	if tx.Terminated() {
		if err := d.Store.MoveToStep(ctx, ticket, d.Nodes.PendingStep, d.Nodes.TerminatedStep, workflow); err != nil {
			return graph.Node{}, fmt.Errorf("move ticket %s: %w", tx.Key(), err)
		}
	}
	log.Debug().
		Str("component", "transactions").
		Str("transaction", tx.Key()).
		Bool("terminated", tx.Terminated()).
		Msg("Ticket created")
	return ticket, nil
}
