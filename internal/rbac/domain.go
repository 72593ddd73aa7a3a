package rbac

import "github.com/odyssey-erp/dealdesk/internal/shared"

// Action names an operation subject to authorization.
type Action string

const (
	ActionRead Action = "read"

	ActionQuoteCreate       Action = "quote.create"
	ActionQuoteEdit         Action = "quote.edit"
	ActionChecklistComplete Action = "quote.checklist"
	ActionQuotePrice        Action = "quote.price"
	ActionQuoteApprove      Action = "quote.approve"
	ActionQuoteReject       Action = "quote.reject"
	ActionQuoteFinalize     Action = "quote.finalize"

	ActionOfferManage Action = "offer.manage"
	ActionOfferSelect Action = "offer.select"

	ActionInvoiceGroup               Action = "invoice.group"
	ActionInvoiceDimensions          Action = "invoice.dimensions"
	ActionInvoiceCostAdd             Action = "invoice.cost"
	ActionInvoiceCompleteProcurement Action = "invoice.complete_procurement"
	ActionInvoiceCompleteLogistics   Action = "invoice.complete_logistics"
	ActionInvoiceCompleteCustoms     Action = "invoice.complete_customs"
	ActionInvoiceOverride            Action = "invoice.override"

	ActionStageManage    Action = "stage.manage"
	ActionStageProvision Action = "stage.provision"

	ActionSpecificationManage  Action = "specification.manage"
	ActionSpecificationApprove Action = "specification.approve"
	ActionSpecificationSign    Action = "specification.sign"

	ActionPaymentRecord   Action = "payment.record"
	ActionPaymentSchedule Action = "payment.schedule"

	ActionRegistryView Action = "registry.view"
	ActionRatesManage  Action = "rates.manage"
)

// Resource scopes an authorization check. OrgID zero skips the tenant check.
type Resource struct {
	OrgID int64
}

var all = []shared.Role{
	shared.RoleSales, shared.RoleProcurement, shared.RoleLogistics, shared.RoleCustoms,
	shared.RoleFinance, shared.RoleController,
}

// policy maps an action to the department roles permitted to perform it.
// RoleAdmin is permitted everything and is not listed.
var policy = map[Action][]shared.Role{
	ActionRead: all,

	ActionQuoteCreate:       {shared.RoleSales},
	ActionQuoteEdit:         {shared.RoleSales},
	ActionChecklistComplete: {shared.RoleSales},
	ActionQuotePrice:        {shared.RoleProcurement},
	ActionQuoteApprove:      {shared.RoleController},
	ActionQuoteReject:       {shared.RoleController, shared.RoleSales},
	ActionQuoteFinalize:     {shared.RoleSales, shared.RoleController},

	ActionOfferManage: {shared.RoleProcurement},
	ActionOfferSelect: {shared.RoleProcurement},

	ActionInvoiceGroup:               {shared.RoleProcurement},
	ActionInvoiceDimensions:          {shared.RoleProcurement, shared.RoleLogistics},
	ActionInvoiceCostAdd:             {shared.RoleLogistics},
	ActionInvoiceCompleteProcurement: {shared.RoleProcurement},
	ActionInvoiceCompleteLogistics:   {shared.RoleLogistics},
	ActionInvoiceCompleteCustoms:     {shared.RoleCustoms},
	ActionInvoiceOverride:            {},

	ActionStageManage:    {shared.RoleLogistics},
	ActionStageProvision: {shared.RoleLogistics, shared.RoleController},

	ActionSpecificationManage:  {shared.RoleController, shared.RoleFinance},
	ActionSpecificationApprove: {shared.RoleController},
	ActionSpecificationSign:    {shared.RoleController},

	ActionPaymentRecord:   {shared.RoleFinance},
	ActionPaymentSchedule: {shared.RoleFinance, shared.RoleController},

	ActionRegistryView: {shared.RoleFinance, shared.RoleController},
	ActionRatesManage:  {shared.RoleFinance},
}
