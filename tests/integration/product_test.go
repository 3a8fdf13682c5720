//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/products", "", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	books := decodeJSON[[]productResponse](t, resp)
	if len(books) != seededBookCount {
		t.Fatalf("expected %d books, got %d", seededBookCount, len(books))
	}
	for _, b := range books {
		if b.ISBN == "" || b.Title == "" || b.Author == "" {
			t.Errorf("book %+v is missing catalog fields", b)
		}
		if b.Price <= 0 {
			t.Errorf("book %s: price %v, want > 0", b.ISBN, b.Price)
		}
	}
}

func TestGetProduct(t *testing.T) {
	resp := doGet(t, "/api/products/9780441013593", "", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	b := decodeJSON[productResponse](t, resp)
	if b.Title != "Dune" {
		t.Errorf("title: got %q, want Dune", b.Title)
	}
	if b.Price != 12.5 {
		t.Errorf("price: got %v, want 12.5", b.Price)
	}
	if b.DiscountedPrice != 12.5 {
		t.Errorf("discountedPrice: got %v, want 12.5", b.DiscountedPrice)
	}
}

func TestGetProduct_Discounted(t *testing.T) {
	resp := doGet(t, "/api/products/9780345339683", "", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// The Hobbit seeds at 14.00 with a 20% discount.
	b := decodeJSON[productResponse](t, resp)
	if b.DiscountPercentage != 20 {
		t.Errorf("discountPercentage: got %v, want 20", b.DiscountPercentage)
	}
	if b.DiscountedPrice != 11.2 {
		t.Errorf("discountedPrice: got %v, want 11.2", b.DiscountedPrice)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	resp := doGet(t, "/api/products/0000000000000", "", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	e := decodeJSON[errorResponse](t, resp)
	if e.Code != http.StatusNotFound {
		t.Errorf("error code: got %d, want 404", e.Code)
	}
}

func TestUpdatePrice_RequiresManager(t *testing.T) {
	resp := doRequest(t, http.MethodPut, "/api/sales-manager/products/9780451524935/price",
		"reader@example.com", "", map[string]float64{"price": 9})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestUpdatePrice_Manager(t *testing.T) {
	resp := doRequest(t, http.MethodPut, "/api/sales-manager/products/9780451524935/price",
		"boss@example.com", "manager", map[string]float64{"price": 9.25})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	b := decodeJSON[productResponse](t, resp)
	if b.Price != 9.25 {
		t.Errorf("price: got %v, want 9.25", b.Price)
	}
}

func TestUpdateDiscount_Manager(t *testing.T) {
	resp := doRequest(t, http.MethodPut, "/api/sales-manager/products/9780061120084/discount",
		"boss@example.com", "manager", map[string]float64{"discount": 10})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// 10.99 - 10% = 9.891, rounded to 9.89.
	b := decodeJSON[productResponse](t, resp)
	if b.DiscountedPrice != 9.89 {
		t.Errorf("discountedPrice: got %v, want 9.89", b.DiscountedPrice)
	}
}

func TestUpdateDiscount_OutOfRange(t *testing.T) {
	resp := doRequest(t, http.MethodPut, "/api/sales-manager/products/9780061120084/discount",
		"boss@example.com", "manager", map[string]float64{"discount": 150})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
