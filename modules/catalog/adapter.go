package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Service names registered by the catalog module.
const (
	ServiceGetProducts      = "get-products"
	ServiceGetProductByID   = "get-product-by-id"
	ServiceGetProductByName = "get-product-by-name"
	ServiceSearchProducts   = "search-products"
	ServiceAddProduct       = "add-product"
	ServiceRemoveProduct    = "remove-product"
	ServiceOrderProduct     = "order-product"
	ServiceConnectivity     = "connectivity"
)

// Services lists every catalog service name.
var Services = []string{
	ServiceGetProducts,
	ServiceGetProductByID,
	ServiceGetProductByName,
	ServiceSearchProducts,
	ServiceAddProduct,
	ServiceRemoveProduct,
	ServiceOrderProduct,
	ServiceConnectivity,
}

// adapter implements Port over the catalog module's ServiceContainer. Errors
// carried in responses are rebuilt as *Error so callers keep branching on Kind.
type adapter struct {
	container mono.ServiceContainer
}

// NewAdapter wraps the catalog module's ServiceContainer.
func NewAdapter(container mono.ServiceContainer) Port {
	if container == nil {
		panic("catalog adapter requires non-nil ServiceContainer")
	}
	return &adapter{container: container}
}

// call invokes service and decodes its reply into resp.
func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx, container, service, json.Marshal, json.Unmarshal, req, resp,
	); err != nil {
		return &Error{
			Kind:    KindOperation,
			Op:      service,
			Code:    CodeOperationFailed,
			Message: fmt.Sprintf("%s service call failed: %v", service, err),
			Err:     err,
		}
	}
	return nil
}

func (a *adapter) GetProducts(ctx context.Context, skip, limit int) ([]Product, error) {
	var resp ProductsResponse
	if err := call(ctx, a.container, ServiceGetProducts, &GetProductsRequest{Skip: skip, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

func (a *adapter) GetProductByID(ctx context.Context, id uint) (*Product, error) {
	var resp ProductResponse
	if err := call(ctx, a.container, ServiceGetProductByID, &GetProductByIDRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}
	return resp.Product, nil
}

func (a *adapter) GetProductByName(ctx context.Context, name string) (*Product, error) {
	var resp ProductResponse
	if err := call(ctx, a.container, ServiceGetProductByName, &GetProductByNameRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}
	return resp.Product, nil
}

func (a *adapter) SearchProducts(ctx context.Context, query string, skip, limit int) ([]Product, error) {
	var resp ProductsResponse
	req := SearchProductsRequest{Query: query, Skip: skip, Limit: limit}
	if err := call(ctx, a.container, ServiceSearchProducts, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

func (a *adapter) AddProduct(ctx context.Context, p NewProduct) (*Product, error) {
	var resp ProductResponse
	if err := call(ctx, a.container, ServiceAddProduct, &p, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}
	return resp.Product, nil
}

func (a *adapter) RemoveProduct(ctx context.Context, id uint) (*Product, error) {
	var resp ProductResponse
	if err := call(ctx, a.container, ServiceRemoveProduct, &RemoveProductRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}
	return resp.Product, nil
}

func (a *adapter) OrderProduct(ctx context.Context, req OrderRequest) (*Order, error) {
	var resp OrderResponse
	if err := call(ctx, a.container, ServiceOrderProduct, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (a *adapter) Connectivity(ctx context.Context) (Connectivity, error) {
	var resp ConnectivityResponse
	if err := call(ctx, a.container, ServiceConnectivity, &ConnectivityRequest{}, &resp); err != nil {
		return Connectivity{}, err
	}
	return resp.Connectivity, nil
}
