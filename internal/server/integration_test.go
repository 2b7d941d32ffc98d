package server

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/Marioshad/foodvault/internal/analytics"
	"github.com/Marioshad/foodvault/internal/auth"
	"github.com/Marioshad/foodvault/internal/inventory"
	"github.com/Marioshad/foodvault/internal/receipt"
	"github.com/Marioshad/foodvault/internal/reconcile"
	"github.com/Marioshad/foodvault/internal/scanning"
)

var _ = Describe("Integration", func() {
	var (
		dbPath   string
		archive  *receipt.LocalStorage
		scanner  *mockScanner
		store    *inventory.BoltStore
		ghServer *ghttp.Server
		client   *apiClient
	)

	// start wires the real bbolt stores behind a fresh HTTP server
	start := func() {
		var err error
		store, err = inventory.NewBoltStore(dbPath)
		Expect(err).NotTo(HaveOccurred())
		sessions, err := auth.NewBoltSessions(store.DB())
		Expect(err).NotTo(HaveOccurred())

		inv := inventory.NewService(store)
		server := NewServer(Services{
			Inventory: inv,
			Receipts:  receipt.NewService(scanner, archive, receipt.Options{}),
			Reconcile: reconcile.NewEngine(inv, reconcile.DefaultUnit, reconcile.DefaultShelfLifeDays),
			Analytics: analytics.NewService(store),
			Auth:      auth.NewService(store, sessions, auth.DefaultSessionTTL),
		}, Options{})

		ghServer = ghttp.NewServer()
		routeAll(ghServer, server.ServeHTTP)
	}

	stop := func() {
		if ghServer != nil {
			ghServer.Close()
			ghServer = nil
		}
		if store != nil {
			Expect(store.Close()).To(Succeed())
			store = nil
		}
	}

	BeforeEach(func() {
		tempDir := GinkgoT().TempDir()
		dbPath = filepath.Join(tempDir, "foodvault.db")

		var err error
		archive, err = receipt.NewLocalStorage(filepath.Join(tempDir, "receipts"))
		Expect(err).NotTo(HaveOccurred())

		scanner = &mockScanner{data: &scanning.ReceiptData{
			Items: []scanning.CandidateItem{
				{Name: "Milk", Price: 500, Quantity: 2, Confidence: 0.9},
				{Name: "Bread", Price: 250, Quantity: 1, Confidence: 0.4},
				{Name: "Butter", Price: 300, Quantity: 1, Confidence: 0.95},
			},
			Language:    "en",
			TotalAmount: 1550,
		}}

		start()
		client = newAPIClient(ghServer.URL())
	})

	AfterEach(stop)

	It("should upload a receipt, commit a selection and survive a restart", func() {
		resp, body := client.do(http.MethodPost, "/api/register", auth.Credentials{Username: "alice", Password: "secret1"})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated), string(body))

		resp, body = client.do(http.MethodPost, "/api/locations", inventory.NewLocation{Name: "Fridge", Type: inventory.LocationHome})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated), string(body))
		fridge := decode[inventory.Location](body)

		// --- Step 1: extraction ---
		resp, body = client.upload("receipt.jpg", []byte("fake image"))
		Expect(resp.StatusCode).To(Equal(http.StatusOK), string(body))
		extraction := decode[receipt.Extraction](body)
		Expect(extraction.Items).To(HaveLen(3))

		_, err := archive.Get(context.Background(), extraction.ReceiptID)
		Expect(err).NotTo(HaveOccurred())

		// Nothing is persisted until the commit
		resp, body = client.do(http.MethodGet, "/api/food-items", nil)
		Expect(decode[[]inventory.FoodItem](body)).To(BeEmpty())

		// --- Step 2: commit two of three ---
		resp, body = client.do(http.MethodPost, "/api/receipts/commit", reconcile.Request{
			Items:      extraction.Items,
			Selected:   []int{0, 2},
			LocationID: fridge.ID,
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated), string(body))

		today := inventory.DateOf(time.Now())
		for _, item := range decode[reconcile.Result](body).Created {
			Expect(item.Unit).To(Equal(inventory.UnitPieces))
			Expect(item.ExpiryDate.String()).To(Equal(today.AddDays(7).String()))
		}

		// --- Step 3: restart on the same file ---
		stop()
		start()
		client.base = ghServer.URL()

		resp, body = client.do(http.MethodGet, "/api/analytics", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK), string(body))
		report := decode[analytics.Summary](body)
		Expect(report.Utilization).To(ConsistOf(analytics.LocationUsage{
			LocationID: fridge.ID, Name: "Fridge", Items: 2, ValueCents: 1300, Value: 13.00,
		}))
	})
})
