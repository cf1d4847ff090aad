package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/service"
)

func TestParseBidVolumeLimit(t *testing.T) {
	errorCases := []string{
		"",
		"/",
		"5/1y",
		"-5/1m",
		"lots/1h",
	}
	for _, s := range errorCases {
		_, _, err := parseBidVolumeLimit(s)
		require.Error(t, err)
	}

	amount, period, err := parseBidVolumeLimit("1000000 / 24h")
	require.NoError(t, err)
	require.Equal(t, uint64(1000000), amount)
	require.Equal(t, 24*time.Hour, period)
}

func TestParseGenesisBalances(t *testing.T) {
	_, err := parseGenesisBalances([]string{"alice"})
	require.Error(t, err)
	_, err = parseGenesisBalances([]string{"alice=ten"})
	require.Error(t, err)

	balances, err := parseGenesisBalances([]string{"alice=100", "bob=50", "alice=10"})
	require.NoError(t, err)
	require.Equal(t, map[auction.AccountID]uint64{"alice": 110, "bob": 50}, balances)
}

func TestParseGenesisAssets(t *testing.T) {
	_, err := parseGenesisAssets([]string{"alice"})
	require.Error(t, err)
	_, err = parseGenesisAssets([]string{"alice=3"})
	require.Error(t, err)
	_, err = parseGenesisAssets([]string{"alice=3/x"})
	require.Error(t, err)

	seeds, err := parseGenesisAssets([]string{"alice=3/7"})
	require.NoError(t, err)
	require.Equal(t, []service.AssetSeed{{
		Owner: "alice",
		Asset: auction.AssetRef{Class: 3, Instance: 7},
	}}, seeds)
}
