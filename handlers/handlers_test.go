package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/logistics_backend/middlewares"
	"bitbucket.org/mmdatafocus/logistics_backend/testutil"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func newAPI(t *testing.T, role string) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := testutil.NewEnv()
	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)
	h := &Handler{
		Parcels:    env.Parcels,
		Trips:      env.Trips,
		Ledger:     env.Ledger,
		Collection: env.Collection,
		Directory:  env.Directory,
		Logger:     quiet,
	}
	r := gin.New()
	api := r.Group("/api/v1", middlewares.CorrelationMiddleware(), middlewares.AuthMiddleware())
	h.Register(api)

	token, err := utils.JwtGenerate("tenant-1", "user-1", "Ma Thida", role)
	require.NoError(t, err)
	return &apiClient{t: t, router: r, token: token}
}

func (a *apiClient) do(method, path string, body any) (int, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (a *apiClient) mustDo(status int, method, path string, body any) map[string]any {
	a.t.Helper()
	code, out := a.do(method, path, body)
	require.Equal(a.t, status, code, "%s %s -> %v", method, path, out)
	return out
}

func TestAPI_RequiresToken(t *testing.T) {
	a := newAPI(t, "staff")
	a.token = ""
	code, _ := a.do(http.MethodGet, "/invoices/anything", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAPI_ParcelToPartiallyPaidCollection(t *testing.T) {
	a := newAPI(t, "staff")

	client := a.mustDo(http.StatusCreated, http.MethodPost, "/clients", gin.H{"name": "Golden Lotus", "default_rate": 50})
	assert.Equal(t, "50.00", client["default_rate"])
	warehouse := a.mustDo(http.StatusCreated, http.MethodPost, "/warehouses", gin.H{"name": "Mandalay Hub"})
	trip := a.mustDo(http.StatusCreated, http.MethodPost, "/trips", gin.H{"route": "YGN-MDY", "destination_warehouse_id": warehouse["id"]})
	assert.Equal(t, "S1", trip["trip_number"])

	parcel := a.mustDo(http.StatusCreated, http.MethodPost, "/parcels", gin.H{
		"client_id": client["id"], "trip_id": trip["id"], "weight": "12.5", "quantity": 2,
	})
	assert.Equal(t, "staged", parcel["status"])
	pieces := parcel["pieces"].([]any)
	require.Len(t, pieces, 2)
	assert.Equal(t, "S1-001-01", pieces[0].(map[string]any)["barcode"])

	parcelId := parcel["id"]
	a.mustDo(http.StatusOK, http.MethodPost, "/parcels/bulk-status", gin.H{"parcel_ids": []any{parcelId}, "status": "loaded"})
	moved := a.mustDo(http.StatusOK, http.MethodPost, "/trips/"+trip["id"].(string)+"/status", gin.H{"status": "in_transit"})
	assert.EqualValues(t, 1, moved["parcels_moved"])
	a.mustDo(http.StatusOK, http.MethodPost, "/parcels/bulk-status", gin.H{"parcel_ids": []any{parcelId}, "status": "arrived"})

	inv := a.mustDo(http.StatusCreated, http.MethodPost, "/invoices", gin.H{
		"client_id": client["id"],
		"status":    "sent",
		"line_items": []gin.H{
			{"shipment_id": parcelId, "description": "Freight", "quantity": 10, "rate": 100},
		},
	})
	assert.Equal(t, "1000.00", inv["total"])
	assert.Equal(t, "1000.00", inv["outstanding"])
	invoiceId := inv["id"].(string)

	pay := a.mustDo(http.StatusCreated, http.MethodPost, "/invoices/"+invoiceId+"/payments", gin.H{"amount": "400", "method": "cash"})
	assert.Equal(t, "400.00", pay["new_paid_total"])
	assert.Equal(t, "600.00", pay["outstanding"])
	assert.Equal(t, false, pay["fully_paid"])

	check := a.mustDo(http.StatusOK, http.MethodGet, "/parcels/"+parcelId.(string)+"/collection-check", nil)
	assert.Equal(t, true, check["can_collect"])
	assert.Equal(t, "partial_payment", check["warning"])
	assert.Equal(t, "600.00", check["outstanding"])

	res := a.mustDo(http.StatusOK, http.MethodPost, "/parcels/"+parcelId.(string)+"/collect", gin.H{"note": "picked up by owner"})
	assert.Equal(t, true, res["success"])

	got := a.mustDo(http.StatusOK, http.MethodGet, "/parcels/"+parcelId.(string), nil)
	assert.Equal(t, "collected", got["status"])
	assert.Nil(t, got["warehouse_id"])
}

func TestAPI_ErrorMapping(t *testing.T) {
	a := newAPI(t, "staff")

	code, body := a.do(http.MethodGet, "/invoices/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(utils.ErrorKindNotFound), body["code"])

	code, body = a.do(http.MethodPost, "/parcels", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["fields"], "ClientId")

	trip := a.mustDo(http.StatusCreated, http.MethodPost, "/trips", gin.H{"route": "YGN-NPT"})
	code, body = a.do(http.MethodPost, "/trips/"+trip["id"].(string)+"/close", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, string(utils.ErrorKindForbidden), body["code"])

	code, _ = a.do(http.MethodPost, "/parcels/scan-collect", gin.H{"code": "nothing-matches"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAPI_AdminClosesTrip(t *testing.T) {
	a := newAPI(t, "admin")
	trip := a.mustDo(http.StatusCreated, http.MethodPost, "/trips", gin.H{"route": "YGN-NPT"})
	closed := a.mustDo(http.StatusOK, http.MethodPost, "/trips/"+trip["id"].(string)+"/close", nil)
	assert.Equal(t, "closed", closed["status"])

	code, _ := a.do(http.MethodPost, "/trips/"+trip["id"].(string)+"/close", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_ScanCollectReturnsParcelSummary(t *testing.T) {
	a := newAPI(t, "staff")

	client := a.mustDo(http.StatusCreated, http.MethodPost, "/clients", gin.H{"name": "Shwe Pyi", "default_rate": 40})
	warehouse := a.mustDo(http.StatusCreated, http.MethodPost, "/warehouses", gin.H{"name": "Mandalay Hub"})
	trip := a.mustDo(http.StatusCreated, http.MethodPost, "/trips", gin.H{"route": "YGN-MDY", "destination_warehouse_id": warehouse["id"]})
	parcel := a.mustDo(http.StatusCreated, http.MethodPost, "/parcels", gin.H{
		"client_id": client["id"], "trip_id": trip["id"], "description": "Rice sacks", "weight": "20", "quantity": 2,
	})
	parcelId := parcel["id"]
	a.mustDo(http.StatusOK, http.MethodPost, "/parcels/bulk-status", gin.H{"parcel_ids": []any{parcelId}, "status": "loaded"})
	a.mustDo(http.StatusOK, http.MethodPost, "/trips/"+trip["id"].(string)+"/status", gin.H{"status": "in_transit"})
	a.mustDo(http.StatusOK, http.MethodPost, "/parcels/bulk-status", gin.H{"parcel_ids": []any{parcelId}, "status": "arrived"})

	res := a.mustDo(http.StatusOK, http.MethodPost, "/parcels/scan-collect", gin.H{"code": "S1-001-02"})
	assert.Equal(t, true, res["success"])
	assert.Equal(t, parcelId, res["parcel_id"])
	assert.NotEmpty(t, res["collected_at"])

	summary, ok := res["parcel"].(map[string]any)
	require.True(t, ok, "%v", res)
	assert.Equal(t, client["id"], summary["client_id"])
	assert.Equal(t, "Shwe Pyi", summary["client_name"])
	assert.Equal(t, "Rice sacks", summary["description"])
	assert.Equal(t, "collected", summary["status"])
	assert.Equal(t, "S1", summary["trip_number"])
	assert.ElementsMatch(t, []any{"S1-001-01", "S1-001-02"}, summary["barcodes"])
}

func TestAPI_UpdateClient(t *testing.T) {
	a := newAPI(t, "staff")
	client := a.mustDo(http.StatusCreated, http.MethodPost, "/clients", gin.H{"name": "Golden Lotus", "default_rate": 50})

	updated := a.mustDo(http.StatusOK, http.MethodPut, "/clients/"+client["id"].(string), gin.H{"name": "Golden Lotus Trading", "default_rate": 65})
	assert.Equal(t, "Golden Lotus Trading", updated["name"])
	assert.Equal(t, "65.00", updated["default_rate"])

	code, _ := a.do(http.MethodPut, "/clients/missing", gin.H{"name": "Nobody"})
	assert.Equal(t, http.StatusNotFound, code)
}
