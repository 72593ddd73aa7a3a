package masterdata

import (
	"context"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Service answers reference lookups for the rest of the system.
type Service struct {
	store Store
}

// NewService creates a new master data service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Store exposes the underlying read contract.
func (s *Service) Store() Store {
	return s.store
}

// Supplier returns a supplier by id.
func (s *Service) Supplier(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.Invalid("supplier_id", "must be positive")
	}
	return s.store.Supplier(ctx, id)
}

// BuyerCompany returns a company that may act as buyer entity.
func (s *Service) BuyerCompany(ctx context.Context, id int64) (Company, error) {
	if id <= 0 {
		return Company{}, shared.Invalid("buyer_company_id", "must be positive")
	}
	c, err := s.store.Company(ctx, id)
	if err != nil {
		return Company{}, err
	}
	if c.Kind != CompanyBuyer {
		return Company{}, shared.Invalid("buyer_company_id", "is not a buyer entity")
	}
	return c, nil
}

// Customer returns a customer by id.
func (s *Service) Customer(ctx context.Context, id int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, shared.Invalid("customer_id", "must be positive")
	}
	return s.store.Customer(ctx, id)
}

// Signatory picks the contact flagged as signatory for customerID. When
// preferredID is set it must belong to the customer and carry the flag.
func (s *Service) Signatory(ctx context.Context, customerID int64, preferredID *int64) (Contact, error) {
	if preferredID != nil {
		c, err := s.store.Contact(ctx, *preferredID)
		if err != nil {
			return Contact{}, err
		}
		if c.CustomerID != customerID {
			return Contact{}, shared.Invalid("signatory_contact_id", "belongs to another customer")
		}
		if !c.IsSignatory {
			return Contact{}, shared.Invalid("signatory_contact_id", "is not a signatory")
		}
		return c, nil
	}
	contacts, err := s.store.Contacts(ctx, customerID)
	if err != nil {
		return Contact{}, err
	}
	for _, c := range contacts {
		if c.IsSignatory {
			return c, nil
		}
	}
	return Contact{}, shared.Invalid("customer_id", "has no signatory contact")
}

// Warehouse returns a warehouse by id.
func (s *Service) Warehouse(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.Invalid("warehouse_id", "must be positive")
	}
	return s.store.Warehouse(ctx, id)
}
