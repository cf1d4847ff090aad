package main

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subastra/auctiond/lib/accounts"
	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/lib/common"
	"github.com/subastra/auctiond/lib/dshelper"
	"github.com/subastra/auctiond/lib/finalizer"
	"github.com/subastra/auctiond/lib/peerflags"
	golog "github.com/textileio/go-log/v2"

	"github.com/subastra/auctiond/httpapi"
	"github.com/subastra/auctiond/service"
	"github.com/subastra/auctiond/service/eventbus"
	"github.com/subastra/auctiond/service/store"
)

var (
	cliName           = "auctiond"
	defaultConfigPath = filepath.Join(os.Getenv("HOME"), "."+cliName)
	log               = golog.Logger(cliName)
	v                 = viper.New()
)

func init() {
	_ = godotenv.Load(".env")
	configPath := os.Getenv("AUCTIOND_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	_ = godotenv.Load(filepath.Join(configPath, ".env"))

	rootCmd.AddCommand(initCmd, daemonCmd, idCmd, auctionsCmd, bidCmd, closeCmd)
	auctionsCmd.AddCommand(auctionsListCmd)
	auctionsCmd.AddCommand(auctionsShowCmd)

	commonFlags := []common.Flag{
		{
			Name:        "http-port",
			DefValue:    "9999",
			Description: "HTTP API listen address",
		},
	}
	daemonFlags := []common.Flag{
		{
			Name:        "genesis-time",
			DefValue:    "",
			Description: "Block zero instant in RFC3339 form; required",
		},
		{
			Name:        "block-interval",
			DefValue:    6 * time.Second,
			Description: "Wall duration of one block",
		},
		{
			Name:        "name-max-length",
			DefValue:    128,
			Description: "Maximum length of auction names",
		},
		{
			Name:        "min-auction-duration",
			DefValue:    uint64(10),
			Description: "Minimum auction duration in blocks",
		},
		{
			Name:        "bid-add-blocks",
			DefValue:    uint64(5),
			Description: "Blocks an auction is extended by when a bid lands near its end",
		},
		{
			Name:        "bid-step-perc",
			DefValue:    uint64(10),
			Description: "Minimum next bid increase in percent of the last bid",
		},
		{
			Name:        "bid-min-amount",
			DefValue:    uint64(1),
			Description: "Global minimum bid amount",
		},
		{
			Name:        "candle-default-duration",
			DefValue:    uint64(99356),
			Description: "Required total duration of candle auctions in blocks",
		},
		{
			Name:        "candle-closing-period",
			DefValue:    uint64(27818),
			Description: "Required candle closing period in blocks",
		},
		{
			Name:        "candle-closing-ranges",
			DefValue:    uint64(100),
			Description: "Number of candle closing-period sub-intervals",
		},
		{
			Name:     "bid-volume-limit",
			DefValue: "",
			Description: `Maximum total bid amount admitted for a period of time.
In the form of '1000000/1m' or '50000000 / 24h'. Default to no limit. Be aware
that the volume counter resets when auctiond restarts.`,
		},
		{
			Name:        "genesis-balance",
			DefValue:    []string{},
			Description: "Account funded at first start, in the form 'account=amount'",
		},
		{
			Name:        "genesis-asset",
			DefValue:    []string{},
			Description: "Asset minted at first start, in the form 'account=class/instance'",
		},
		{
			Name:        "events",
			DefValue:    true,
			Description: "Announce auction events over libp2p pubsub",
		},
		{Name: "metrics-addr", DefValue: ":9090", Description: "Prometheus listen address"},
		{Name: "log-debug", DefValue: false, Description: "Enable debug level log"},
		{Name: "log-json", DefValue: false, Description: "Enable structured logging"},
	}
	for _, f := range peerflags.Flags {
		daemonFlags = append(daemonFlags, common.Flag(f))
	}
	initFlags := []common.Flag{
		{
			Name:        "account-key",
			DefValue:    "",
			Description: "Account private key used to sign requests; generated if empty",
		},
	}
	for _, f := range peerflags.Flags {
		initFlags = append(initFlags, common.Flag(f))
	}
	auctionsFlags := []common.Flag{{Name: "json", DefValue: false,
		Description: "output in json format instead of tabular print"}}
	auctionsListFlags := []common.Flag{
		{Name: "limit", DefValue: 0, Description: "maximum number of results; 0 means no limit"},
		{Name: "offset", DefValue: "", Description: "auction id to seek past, from a previous page"},
		{Name: "order", DefValue: "desc", Description: "result order: asc or desc"},
		{Name: "owner", DefValue: "", Description: "only list auctions owned by this account"},
	}

	cobra.OnInitialize(func() {
		v.SetConfigType("json")
		v.SetConfigName("config")
		v.AddConfigPath(os.Getenv("AUCTIOND_PATH"))
		v.AddConfigPath(defaultConfigPath)
		_ = v.ReadInConfig()
	})

	common.ConfigureCLI(v, "AUCTIOND", commonFlags, rootCmd.PersistentFlags())
	common.ConfigureCLI(v, "AUCTIOND", initFlags, initCmd.PersistentFlags())
	common.ConfigureCLI(v, "AUCTIOND", daemonFlags, daemonCmd.PersistentFlags())
	common.ConfigureCLI(v, "AUCTIOND", auctionsFlags, auctionsCmd.PersistentFlags())
	common.ConfigureCLI(v, "AUCTIOND", auctionsListFlags, auctionsListCmd.PersistentFlags())
}

var rootCmd = &cobra.Command{
	Use:   cliName,
	Short: "Auctiond runs block-ordered NFT auctions with escrowed settlement",
	Long: `Auctiond runs block-ordered NFT auctions with escrowed settlement.

It supports english, top-up and candle auction policies over a local asset
registry and balance ledger, and serves a signed HTTP API for all operations.

To get started, run 'auctiond init' and follow the instructions.
`,
	Args: cobra.ExactArgs(0),
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes auctiond configuration files",
	Long: `Initializes auctiond configuration files and generates new keypairs.

auctiond uses a repository in the local file system. By default, the repo is
located at ~/.auctiond. To change the repo location, set the $AUCTIOND_PATH
environment variable:

    export AUCTIOND_PATH=/path/to/auctiondrepo
`,
	Args: cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		if v.GetString("account-key") == "" {
			sk, err := accounts.GenerateKey()
			common.CheckErrf("generating account key: %v", err)
			enc, err := accounts.EncodeKey(sk)
			common.CheckErrf("encoding account key: %v", err)
			v.Set("account-key", enc)
		}
		path, err := peerflags.WriteConfig(v, "AUCTIOND_PATH", defaultConfigPath)
		common.CheckErrf("writing config: %v", err)
		fmt.Printf("Initialized configuration file: %s\n\n", path)

		sk, err := accounts.DecodeKey(v.GetString("account-key"))
		common.CheckErrf("decoding account key: %v", err)
		account, err := accounts.FromPrivateKey(sk)
		common.CheckErrf("deriving account id: %v", err)

		fmt.Printf(`Your account id:

    %s

Requests that create auctions, place bids or claim refunds are signed with the
account key in the configuration file. Fund the account at daemon start:

    auctiond daemon --genesis-time [rfc3339-instant] --genesis-balance %s=[amount]

Good luck!
`, account, account)
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run an auction daemon",
	Long:  "Run an auction daemon that hosts auctions and serves the signed HTTP API.",
	Args:  cobra.ExactArgs(0),
	PersistentPreRun: func(c *cobra.Command, args []string) {
		common.ExpandEnvVars(v, v.AllSettings())
		err := common.ConfigureLogging(v, []string{
			cliName,
			"auctiond/service",
			"auctiond/engine",
			"auctiond/store",
			"auctiond/ledger",
			"auctiond/registry",
			"auctiond/eventbus",
			"auctiond/api",
		})
		common.CheckErrf("setting log levels: %v", err)
	},
	Run: func(c *cobra.Command, args []string) {
		genesisTime, err := time.Parse(time.RFC3339, v.GetString("genesis-time"))
		if v.GetString("genesis-time") == "" {
			common.CheckErr(errors.New("--genesis-time is required"))
		}
		common.CheckErrf("parsing genesis time: %v", err)

		settings, err := common.MarshalConfig(v, !v.GetBool("log-json"), "private-key", "account-key")
		common.CheckErrf("marshaling config: %v", err)
		log.Infof("loaded config: %s", string(settings))

		fin := finalizer.NewFinalizer()
		repoPath := os.Getenv("AUCTIOND_PATH")
		if repoPath == "" {
			repoPath = defaultConfigPath
		}
		common.CheckErrf("checking repo path: %v", checkRepoWritable(repoPath))
		store, err := dshelper.NewBadgerTxnDatastore(filepath.Join(repoPath, "auctionstore"))
		common.CheckErrf("creating datastore: %v", err)
		fin.Add(store)

		err = common.SetupInstrumentation(v.GetString("metrics-addr"))
		common.CheckErrf("booting instrumentation: %v", err)

		var bus *eventbus.Bus
		if v.GetBool("events") {
			pconfig, err := peerflags.GetConfig(v, "AUCTIOND_PATH", defaultConfigPath, false)
			common.CheckErrf("getting peer config: %v", err)
			bus, err = eventbus.New(c.Context(), pconfig)
			common.CheckErrf("creating event bus: %v", err)
			bus.Bootstrap()
		}

		config := service.Config{
			Params:        paramsFromFlags(),
			GenesisTime:   genesisTime,
			BlockInterval: v.GetDuration("block-interval"),
		}
		if limit := v.GetString("bid-volume-limit"); limit != "" {
			amount, period, err := parseBidVolumeLimit(limit)
			common.CheckErrf(fmt.Sprintf("parsing '%s': %%v", limit), err)
			config.BidVolumeLimit = amount
			config.BidVolumePeriod = period
		}
		config.GenesisBalances, err = parseGenesisBalances(common.ParseStringSlice(v, "genesis-balance"))
		common.CheckErrf("parsing genesis balances: %v", err)
		config.GenesisAssets, err = parseGenesisAssets(common.ParseStringSlice(v, "genesis-asset"))
		common.CheckErrf("parsing genesis assets: %v", err)

		serv, err := service.New(config, store, bus)
		common.CheckErrf("starting service: %v", err)
		fin.Add(serv)

		api, err := httpapi.NewServer(":"+v.GetString("http-port"), serv)
		common.CheckErrf("creating http API server: %v", err)
		fin.Add(api)

		common.HandleInterrupt(func() {
			common.CheckErr(fin.Cleanupf("closing service: %v", nil))
		})
	},
}

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Shows the id, public key and addresses of the auctiond event bus peer",
	Args:  cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		b, err := getBody(urlFor("id"))
		common.CheckErr(err)
		fmt.Println(string(b))
	},
}

var auctionsCmd = &cobra.Command{
	Use: "auctions",
	Aliases: []string{
		"auction",
	},
	Short: "Interact with auctions",
	Long:  "Interact with auctions.",
	Args:  cobra.ExactArgs(0),
}

var auctionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List auctions",
	Args:  cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		params := make([]string, 0, 4)
		if limit := v.GetInt("limit"); limit > 0 {
			params = append(params, "limit="+strconv.Itoa(limit))
		}
		if offset := v.GetString("offset"); offset != "" {
			params = append(params, "offset="+offset)
		}
		if order := v.GetString("order"); order != "" {
			params = append(params, "order="+order)
		}
		if owner := v.GetString("owner"); owner != "" {
			params = append(params, "owner="+owner)
		}
		u := urlFor("auctions")
		if len(params) > 0 {
			u += "?" + strings.Join(params, "&")
		}
		b, err := getBody(u)
		common.CheckErr(err)
		var records []store.Record
		common.CheckErrf("decoding response: %v", json.Unmarshal(b, &records))
		if v.GetBool("json") {
			b, err := json.MarshalIndent(records, "", "\t")
			common.CheckErr(err)
			fmt.Println(string(b))
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.DiscardEmptyColumns)
		_, err = fmt.Fprintln(w, "ID\tTYPE\tNAME\tOWNER\tSTART\tEND\tNEXT BID MIN\tCLOSED")
		common.CheckErr(err)
		for _, r := range records {
			g := r.Auction.General
			_, err = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%v\n",
				r.ID, r.Auction.Type, g.Name, g.Owner, g.Start, g.End,
				humanize.Comma(int64(g.NextBidMin)), g.Closed)
			common.CheckErr(err)
		}
		_ = w.Flush()
	},
}

var auctionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of one auction",
	Long:  `Show details of one auction, specified by the auction ID, which can be obtained by 'auctiond auctions list'`,
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		b, err := getBody(urlFor("auctions", args[0]))
		common.CheckErr(err)
		var a auction.Auction
		common.CheckErrf("decoding response: %v", json.Unmarshal(b, &a))
		b, err = json.MarshalIndent(a, "", "\t")
		common.CheckErr(err)
		fmt.Println(string(b))
	},
}

var bidCmd = &cobra.Command{
	Use:   "bid <auction-id> <amount>",
	Short: "Place a bid on an auction",
	Long:  "Place a bid on an auction, signed with the configured account key.",
	Args:  cobra.ExactArgs(2),
	Run: func(c *cobra.Command, args []string) {
		amount, err := strconv.ParseUint(args[1], 10, 64)
		common.CheckErrf("parsing amount: %v", err)
		body, err := json.Marshal(map[string]uint64{"amount": amount})
		common.CheckErr(err)
		postSigned(path.Join("auctions", args[0], "bids"), body)
		fmt.Printf("Bid %s placed on auction %s\n", humanize.Comma(int64(amount)), args[0])
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <auction-id>",
	Short: "Settle an ended auction",
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		res, err := http.Post(urlFor("auctions", args[0], "close"), "application/json", nil)
		common.CheckErr(err)
		defer func() {
			common.CheckErr(res.Body.Close())
		}()
		if res.StatusCode >= http.StatusBadRequest {
			b, _ := ioutil.ReadAll(res.Body)
			log.Fatalf("%s: %s", res.Status, string(b))
		}
		fmt.Printf("Auction %s closed\n", args[0])
	},
}

func main() {
	common.CheckErr(rootCmd.Execute())
}

func urlFor(parts ...string) string {
	u := "http://127.0.0.1:" + v.GetString("http-port")
	if len(parts) > 0 {
		u += "/" + path.Join(parts...)
	}
	return u
}

func getBody(u string) ([]byte, error) {
	res, err := http.Get(u)
	if err != nil {
		return nil, err
	}
	defer func() {
		common.CheckErr(res.Body.Close())
	}()
	b, _ := ioutil.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		log.Fatalf("%s: %s", res.Status, string(b))
	}
	return b, nil
}

// postSigned sends a signed POST request with the configured account key.
func postSigned(apiPath string, body []byte) {
	if v.GetString("account-key") == "" {
		common.CheckErr(errors.New("no account-key configured. Run 'init' to generate one"))
	}
	sk, err := accounts.DecodeKey(v.GetString("account-key"))
	common.CheckErrf("decoding account key: %v", err)
	account, sig, err := httpapi.SignRequest(sk, http.MethodPost, "/"+apiPath, body)
	common.CheckErrf("signing request: %v", err)

	req, err := http.NewRequest(http.MethodPost, urlFor(apiPath), bytes.NewReader(body))
	common.CheckErr(err)
	req.Header.Set(httpapi.HeaderAccount, account)
	req.Header.Set(httpapi.HeaderSignature, sig)
	res, err := http.DefaultClient.Do(req)
	common.CheckErr(err)
	defer func() {
		common.CheckErr(res.Body.Close())
	}()
	if res.StatusCode >= http.StatusBadRequest {
		b, _ := ioutil.ReadAll(res.Body)
		log.Fatalf("%s: %s", res.Status, string(b))
	}
}

// checkRepoWritable probes write access to the repo path before the
// datastore opens, surfacing permission problems with a clear error.
func checkRepoWritable(repoPath string) error {
	if err := os.MkdirAll(repoPath, os.ModePerm); err != nil {
		return fmt.Errorf("initializing repo path: %v", err)
	}
	testFile := filepath.Join(repoPath, ulid.MustNew(ulid.Now(), rand.Reader).String())
	if err := ioutil.WriteFile(testFile, []byte("testing"), 0644); err != nil {
		return fmt.Errorf("checking write access to repo path: %v", err)
	}
	if err := os.Remove(testFile); err != nil {
		return fmt.Errorf("removing write test file: %v", err)
	}
	return nil
}

func paramsFromFlags() auction.Params {
	return auction.Params{
		NameMaxLength:               v.GetInt("name-max-length"),
		MinAuctionDuration:          v.GetUint64("min-auction-duration"),
		BidAddBlocks:                v.GetUint64("bid-add-blocks"),
		BidStepPerc:                 v.GetUint64("bid-step-perc"),
		BidMinAmount:                v.GetUint64("bid-min-amount"),
		CandleDefaultDuration:       v.GetUint64("candle-default-duration"),
		CandleClosingPeriodDuration: v.GetUint64("candle-closing-period"),
		CandleClosingRangesCount:    v.GetUint64("candle-closing-ranges"),
	}
}

func parseBidVolumeLimit(s string) (uint64, time.Duration, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0, errors.New("should be separated by forward slash (/)")
	}
	amount, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	d, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return amount, d, nil
}

func parseGenesisBalances(entries []string) (map[auction.AccountID]uint64, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	balances := make(map[auction.AccountID]uint64, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' should be in the form 'account=amount'", e)
		}
		amount, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing amount in '%s': %v", e, err)
		}
		balances[auction.AccountID(parts[0])] += amount
	}
	return balances, nil
}

func parseGenesisAssets(entries []string) ([]service.AssetSeed, error) {
	seeds := make([]service.AssetSeed, 0, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' should be in the form 'account=class/instance'", e)
		}
		ref := strings.SplitN(parts[1], "/", 2)
		if len(ref) != 2 {
			return nil, fmt.Errorf("'%s' should reference an asset as 'class/instance'", e)
		}
		class, err := strconv.ParseUint(ref[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing class in '%s': %v", e, err)
		}
		instance, err := strconv.ParseUint(ref[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing instance in '%s': %v", e, err)
		}
		seeds = append(seeds, service.AssetSeed{
			Owner: auction.AccountID(parts[0]),
			Asset: auction.AssetRef{Class: class, Instance: instance},
		})
	}
	return seeds, nil
}
