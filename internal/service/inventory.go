package service

import (
	"context"
	"fmt"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

func (s *Service) ListEntries(ctx context.Context, filter domain.EntryFilter) ([]domain.InventoryEntry, error) {
	return s.repo.ListEntries(ctx, filter)
}

// ReceiveStock records a receipt and adds its quantity to the product.
func (s *Service) ReceiveStock(ctx context.Context, cmd domain.ReceiveStockCommand) (domain.InventoryEntry, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.InventoryEntry{}, err
	}

	entry := domain.InventoryEntry{
		ProductID:  cmd.ProductID,
		Quantity:   cmd.Quantity,
		ReceivedAt: s.now(),
	}
	err := s.mutate(ctx, []string{productKey(cmd.ProductID)}, func(ctx context.Context, tx store.Tx) error {
		if _, err := adjustStock(ctx, tx, cmd.ProductID, cmd.Quantity, store.ErrStockUnderflow); err != nil {
			return err
		}
		id, err := tx.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		return nil
	})
	if err != nil {
		return domain.InventoryEntry{}, err
	}

	s.logAudit("stock_receive", "inventory_entry", entry.ID, fmt.Sprintf("product %d +%d", entry.ProductID, entry.Quantity))
	return entry, nil
}

// AmendEntry corrects a receipt's quantity. Only the difference reaches the
// product's stock.
func (s *Service) AmendEntry(ctx context.Context, cmd domain.AmendEntryCommand) (domain.InventoryEntry, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.InventoryEntry{}, err
	}

	var amended domain.InventoryEntry
	err := s.withEntry(ctx, cmd.EntryID, func(ctx context.Context, tx store.Tx, entry *domain.InventoryEntry) error {
		delta := cmd.Quantity - entry.Quantity
		if _, err := adjustStock(ctx, tx, entry.ProductID, delta, store.ErrStockUnderflow); err != nil {
			return err
		}
		if err := tx.UpdateEntryQuantity(ctx, entry.ID, cmd.Quantity); err != nil {
			return err
		}
		amended = *entry
		amended.Quantity = cmd.Quantity
		return nil
	})
	if err != nil {
		return domain.InventoryEntry{}, err
	}

	s.logAudit("stock_amend", "inventory_entry", amended.ID, fmt.Sprintf("product %d quantity %d", amended.ProductID, amended.Quantity))
	return amended, nil
}

// RevokeEntry deletes a receipt and takes its quantity back out of stock.
func (s *Service) RevokeEntry(ctx context.Context, entryID int64) error {
	if entryID <= 0 {
		return invalid("entry_id must be greater than 0")
	}

	var revoked domain.InventoryEntry
	err := s.withEntry(ctx, entryID, func(ctx context.Context, tx store.Tx, entry *domain.InventoryEntry) error {
		if _, err := adjustStock(ctx, tx, entry.ProductID, -entry.Quantity, store.ErrStockUnderflow); err != nil {
			return err
		}
		revoked = *entry
		return tx.DeleteEntry(ctx, entry.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit("stock_revoke", "inventory_entry", revoked.ID, fmt.Sprintf("product %d -%d", revoked.ProductID, revoked.Quantity))
	return nil
}

// withEntry locks the entry's product and hands fn the entry as read inside
// the transaction.
func (s *Service) withEntry(ctx context.Context, entryID int64, fn func(ctx context.Context, tx store.Tx, entry *domain.InventoryEntry) error) error {
	before, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	return s.mutate(ctx, []string{productKey(before.ProductID)}, func(ctx context.Context, tx store.Tx) error {
		entry, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		// An entry never moves between products, so the lock taken above covers it.
		return fn(ctx, tx, entry)
	})
}
