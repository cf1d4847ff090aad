package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/libp2p/go-libp2p-core/crypto"
	mbase "github.com/multiformats/go-multibase"
	"github.com/subastra/auctiond/buildinfo"
	"github.com/subastra/auctiond/lib/accounts"
	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/service/ledger"
	"github.com/subastra/auctiond/service/registry"
	austore "github.com/subastra/auctiond/service/store"
	"github.com/textileio/go-libp2p-pubsub-rpc/peer"
	golog "github.com/textileio/go-log/v2"
)

var (
	log = golog.Logger("auctiond/api")
)

// Request headers carrying the caller identity and request signature.
const (
	HeaderAccount   = "X-Account"
	HeaderSignature = "X-Signature"
)

// Service provides scoped access to the auctiond service.
type Service interface {
	PeerInfo() (*peer.Info, error)
	CreateAuction(caller auction.AccountID, a *auction.Auction) (auction.ID, error)
	UpdateAuction(caller auction.AccountID, id auction.ID, a *auction.Auction) error
	DestroyAuction(caller auction.AccountID, id auction.ID) error
	Bid(caller auction.AccountID, id auction.ID, amount uint64) error
	CloseAuction(id auction.ID) error
	ClaimReserved(bidder auction.AccountID, id auction.ID) error
	GetAuction(id auction.ID) (*auction.Auction, error)
	ListAuctions(query austore.Query) ([]austore.Record, error)
	ListAuctionsByOwner(owner auction.AccountID) ([]austore.Record, error)
	ReservedAmount(bidder auction.AccountID, id auction.ID) (uint64, error)
	Balance(account auction.AccountID) (uint64, error)
	FreeBalance(account auction.AccountID) (uint64, error)
	OwnerOf(ref auction.AssetRef) (auction.AccountID, error)
	Height() uint64
}

// NewServer returns a new http server for auctiond commands.
func NewServer(listenAddr string, service Service) (*http.Server, error) {
	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: createMux(service),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("stopping http server: %s", err)
		}
	}()

	log.Infof("http server started at %s", listenAddr)
	return httpServer, nil
}

func createMux(service Service) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", getOnly(healthHandler))
	mux.HandleFunc("/id", getOnly(idHandler(service)))
	mux.HandleFunc("/version", getOnly(versionHandler))
	mux.HandleFunc("/height", getOnly(heightHandler(service)))
	// allow both with and without trailing slash
	auctions := auctionsHandler(service)
	mux.HandleFunc("/auctions", auctions)
	mux.HandleFunc("/auctions/", auctions)
	mux.HandleFunc("/accounts/", getOnly(accountHandler(service)))
	mux.HandleFunc("/assets/", getOnly(assetHandler(service)))
	return mux
}

func getOnly(f http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpError(w, "only GET method is allowed", http.StatusBadRequest)
			return
		}
		f(w, r)
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func idHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := service.PeerInfo()
		if err != nil {
			httpError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data, err := json.MarshalIndent(info, "", "\t")
		if err != nil {
			httpError(w, fmt.Sprintf("marshaling id: %s", err), http.StatusInternalServerError)
			return
		}
		writeBody(w, data)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte(buildinfo.Summary()))
}

func heightHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]uint64{"height": service.Height()})
	}
}

// auctionsHandler dispatches on the path under /auctions:
//
//	GET    /auctions                list auctions
//	POST   /auctions                create an auction
//	GET    /auctions/{id}           show one auction
//	PUT    /auctions/{id}           replace an auction before start
//	DELETE /auctions/{id}           destroy an auction before start
//	POST   /auctions/{id}/bids      place a bid
//	POST   /auctions/{id}/close     settle an ended auction
//	POST   /auctions/{id}/claims    refund a reserved amount
//	GET    /auctions/{id}/reserved  show a bidder's reserved amount
func auctionsHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch len(parts) {
		case 1:
			switch r.Method {
			case http.MethodGet:
				listHandler(service, w, r)
			case http.MethodPost:
				createHandler(service, w, r)
			default:
				httpError(w, "method not allowed", http.StatusBadRequest)
			}
		case 2:
			id, err := parseID(parts[1])
			if err != nil {
				httpError(w, err.Error(), http.StatusBadRequest)
				return
			}
			switch r.Method {
			case http.MethodGet:
				showHandler(service, w, id)
			case http.MethodPut:
				updateHandler(service, w, r, id)
			case http.MethodDelete:
				destroyHandler(service, w, r, id)
			default:
				httpError(w, "method not allowed", http.StatusBadRequest)
			}
		case 3:
			id, err := parseID(parts[1])
			if err != nil {
				httpError(w, err.Error(), http.StatusBadRequest)
				return
			}
			subresourceHandler(service, w, r, id, parts[2])
		default:
			httpError(w, "not found", http.StatusNotFound)
		}
	}
}

func subresourceHandler(service Service, w http.ResponseWriter, r *http.Request, id auction.ID, sub string) {
	switch {
	case sub == "bids" && r.Method == http.MethodPost:
		bidHandler(service, w, r, id)
	case sub == "close" && r.Method == http.MethodPost:
		if err := service.CloseAuction(id); err != nil {
			httpError(w, fmt.Sprintf("closing auction: %s", err), errStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	case sub == "claims" && r.Method == http.MethodPost:
		account, _, proceed := authenticate(w, r)
		if !proceed {
			return
		}
		if err := service.ClaimReserved(account, id); err != nil {
			httpError(w, fmt.Sprintf("claiming reserved amount: %s", err), errStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	case sub == "reserved" && r.Method == http.MethodGet:
		account := auction.AccountID(r.URL.Query().Get("account"))
		if account == "" {
			httpError(w, "missing 'account' query param", http.StatusBadRequest)
			return
		}
		amount, err := service.ReservedAmount(account, id)
		if err != nil {
			httpError(w, fmt.Sprintf("getting reserved amount: %s", err), errStatus(err))
			return
		}
		writeJSON(w, map[string]uint64{"reserved": amount})
	default:
		httpError(w, "not found", http.StatusNotFound)
	}
}

// accountHandler serves GET /accounts/{account}: the full and spendable
// ledger balances of an account.
func accountHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[1] == "" {
			httpError(w, "not found", http.StatusNotFound)
			return
		}
		account := auction.AccountID(parts[1])
		balance, err := service.Balance(account)
		if err != nil {
			httpError(w, fmt.Sprintf("getting balance: %s", err), errStatus(err))
			return
		}
		free, err := service.FreeBalance(account)
		if err != nil {
			httpError(w, fmt.Sprintf("getting free balance: %s", err), errStatus(err))
			return
		}
		writeJSON(w, map[string]uint64{"balance": balance, "free": free})
	}
}

// assetHandler serves GET /assets/{class}/{instance}: the registry owner of
// an asset.
func assetHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 {
			httpError(w, "not found", http.StatusNotFound)
			return
		}
		class, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			httpError(w, fmt.Sprintf("parsing asset class: %s", err), http.StatusBadRequest)
			return
		}
		instance, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			httpError(w, fmt.Sprintf("parsing asset instance: %s", err), http.StatusBadRequest)
			return
		}
		owner, err := service.OwnerOf(auction.AssetRef{Class: class, Instance: instance})
		if err != nil {
			httpError(w, fmt.Sprintf("getting asset owner: %s", err), errStatus(err))
			return
		}
		writeJSON(w, map[string]auction.AccountID{"owner": owner})
	}
}

// auctionRequest is the create/update request body. Owner is always the
// authenticated caller.
type auctionRequest struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	AssetClass   uint64 `json:"asset_class"`
	AssetInst    uint64 `json:"asset_instance"`
	Start        uint64 `json:"start"`
	End          uint64 `json:"end"`
	ReservePrice uint64 `json:"reserve_price"`
	NextBidMin   uint64 `json:"next_bid_min"`
	ClosingStart uint64 `json:"closing_start"`
}

func (req *auctionRequest) toAuction(owner auction.AccountID) (*auction.Auction, error) {
	t, err := auction.TypeByString(req.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", req.Type, err)
	}
	a := &auction.Auction{
		Type: t,
		General: auction.GeneralData{
			Name:         req.Name,
			Asset:        auction.AssetRef{Class: req.AssetClass, Instance: req.AssetInst},
			Owner:        owner,
			Start:        req.Start,
			End:          req.End,
			ReservePrice: req.ReservePrice,
			NextBidMin:   req.NextBidMin,
		},
	}
	if t == auction.TypeCandle {
		a.Candle = &auction.CandleData{ClosingStart: req.ClosingStart}
	}
	return a, nil
}

func createHandler(service Service, w http.ResponseWriter, r *http.Request) {
	account, body, proceed := authenticate(w, r)
	if !proceed {
		return
	}
	var req auctionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpError(w, fmt.Sprintf("decoding request: %s", err), http.StatusBadRequest)
		return
	}
	a, err := req.toAuction(account)
	if err != nil {
		httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := service.CreateAuction(account, a)
	if err != nil {
		httpError(w, fmt.Sprintf("creating auction: %s", err), errStatus(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	data, _ := json.Marshal(map[string]auction.ID{"id": id})
	writeBody(w, data)
}

func updateHandler(service Service, w http.ResponseWriter, r *http.Request, id auction.ID) {
	account, body, proceed := authenticate(w, r)
	if !proceed {
		return
	}
	var req auctionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpError(w, fmt.Sprintf("decoding request: %s", err), http.StatusBadRequest)
		return
	}
	a, err := req.toAuction(account)
	if err != nil {
		httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := service.UpdateAuction(account, id, a); err != nil {
		httpError(w, fmt.Sprintf("updating auction: %s", err), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func destroyHandler(service Service, w http.ResponseWriter, r *http.Request, id auction.ID) {
	account, _, proceed := authenticate(w, r)
	if !proceed {
		return
	}
	if err := service.DestroyAuction(account, id); err != nil {
		httpError(w, fmt.Sprintf("destroying auction: %s", err), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func bidHandler(service Service, w http.ResponseWriter, r *http.Request, id auction.ID) {
	account, body, proceed := authenticate(w, r)
	if !proceed {
		return
	}
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpError(w, fmt.Sprintf("decoding request: %s", err), http.StatusBadRequest)
		return
	}
	if err := service.Bid(account, id, req.Amount); err != nil {
		httpError(w, fmt.Sprintf("placing bid: %s", err), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func showHandler(service Service, w http.ResponseWriter, id auction.ID) {
	a, err := service.GetAuction(id)
	if err != nil {
		httpError(w, fmt.Sprintf("getting auction: %s", err), errStatus(err))
		return
	}
	writeJSON(w, a)
}

func listHandler(service Service, w http.ResponseWriter, r *http.Request) {
	// Owner filtering walks the owner index and ignores pagination params.
	if owner := r.URL.Query().Get("owner"); owner != "" {
		records, err := service.ListAuctionsByOwner(auction.AccountID(owner))
		if err != nil {
			httpError(w, fmt.Sprintf("listing auctions by owner: %s", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, records)
		return
	}
	query := austore.Query{Offset: r.URL.Query().Get("offset")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			httpError(w, fmt.Sprintf("parsing 'limit': %s", err), http.StatusBadRequest)
			return
		}
		query.Limit = n
	}
	switch order := r.URL.Query().Get("order"); order {
	case "", "desc":
	case "asc":
		query.Order = austore.OrderAscending
	default:
		httpError(w, fmt.Sprintf("invalid order %q", order), http.StatusBadRequest)
		return
	}
	records, err := service.ListAuctions(query)
	if err != nil {
		httpError(w, fmt.Sprintf("listing auctions: %s", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

// authenticate verifies the request signature headers against the request
// body and reports the caller's account. It writes the error response itself
// when verification fails.
func authenticate(w http.ResponseWriter, r *http.Request) (auction.AccountID, []byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, fmt.Sprintf("reading request body: %s", err), http.StatusBadRequest)
		return "", nil, false
	}
	account := auction.AccountID(r.Header.Get(HeaderAccount))
	if account == "" {
		httpError(w, fmt.Sprintf("missing '%s' header", HeaderAccount), http.StatusUnauthorized)
		return "", nil, false
	}
	encSig := r.Header.Get(HeaderSignature)
	if encSig == "" {
		httpError(w, fmt.Sprintf("missing '%s' header", HeaderSignature), http.StatusUnauthorized)
		return "", nil, false
	}
	_, sig, err := mbase.Decode(encSig)
	if err != nil {
		httpError(w, fmt.Sprintf("decoding signature: %s", err), http.StatusUnauthorized)
		return "", nil, false
	}
	if err := accounts.Verify(account, signingPayload(r.Method, r.URL.Path, body), sig); err != nil {
		httpError(w, fmt.Sprintf("verifying request: %s", err), http.StatusUnauthorized)
		return "", nil, false
	}
	return account, body, true
}

// SignRequest produces the identity and signature headers for a request.
func SignRequest(sk crypto.PrivKey, method, path string, body []byte) (account, sig string, err error) {
	id, err := accounts.FromPrivateKey(sk)
	if err != nil {
		return "", "", err
	}
	raw, err := accounts.Sign(sk, signingPayload(method, path, body))
	if err != nil {
		return "", "", err
	}
	sig, err = mbase.Encode(mbase.Base32, raw)
	if err != nil {
		return "", "", fmt.Errorf("encoding signature: %v", err)
	}
	return string(id), sig, nil
}

func signingPayload(method, path string, body []byte) []byte {
	payload := make([]byte, 0, len(method)+len(path)+len(body)+2)
	payload = append(payload, method...)
	payload = append(payload, '\n')
	payload = append(payload, path...)
	payload = append(payload, '\n')
	payload = append(payload, body...)
	return payload
}

func parseID(s string) (auction.ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing auction id: %s", err)
	}
	return auction.ID(n), nil
}

var forbiddenErrs = []error{
	auction.ErrNotAuctionOwner,
	auction.ErrNotAssetOwner,
	auction.ErrCannotBidOnOwnAuction,
}

var badRequestErrs = []error{
	auction.ErrNotStarted,
	auction.ErrAlreadyStarted,
	auction.ErrAlreadyClosed,
	auction.ErrEndTimeReached,
	auction.ErrEndTimeNotReached,
	auction.ErrCannotSetClosed,
	auction.ErrInvalidBidAmount,
	auction.ErrStartTimePassed,
	auction.ErrInvalidTimeConfiguration,
	auction.ErrBidOverflow,
	auction.ErrAssetFrozen,
	auction.ErrEmptyName,
	auction.ErrNameTooLong,
	auction.ErrNoChangeOfType,
	auction.ErrInvalidNextBidMin,
	auction.ErrNoReservedAmount,
	auction.ErrCannotClaimWonAuction,
	auction.ErrClaimsNotSupported,
	auction.ErrCloseBeforeClaiming,
	auction.ErrCandleDefaultDuration,
	auction.ErrCandleClosingPeriod,
	auction.ErrCandleNoReservePrice,
	ledger.ErrInsufficientBalance,
	registry.ErrFrozen,
}

func errStatus(err error) int {
	if errors.Is(err, auction.ErrAuctionNotFound) || errors.Is(err, registry.ErrAssetNotFound) {
		return http.StatusNotFound
	}
	if strings.Contains(err.Error(), auction.ErrStringBidVolumeLimited) {
		return http.StatusTooManyRequests
	}
	for _, e := range forbiddenErrs {
		if errors.Is(err, e) {
			return http.StatusForbidden
		}
	}
	for _, e := range badRequestErrs {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		httpError(w, fmt.Sprintf("json encoding: %s", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeBody(w, data)
}

func writeBody(w http.ResponseWriter, data []byte) {
	if _, err := w.Write(data); err != nil {
		log.Errorf("write failed: %v", err)
	}
}

func httpError(w http.ResponseWriter, err string, status int) {
	log.Debugf("request error: %s", err)
	http.Error(w, err, status)
}
