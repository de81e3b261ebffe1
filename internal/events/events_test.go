package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const txHash = "0xAB00000000000000000000000000000000000000000000000000000000000001"

func envelope(kind, args string) Envelope {
	return Envelope{
		Kind: kind,
		Meta: Meta{ChainID: 8453, BlockNumber: 100, BlockTimestamp: 1_740_000_000, TxHash: txHash, LogIndex: 2},
		Args: json.RawMessage(args),
	}
}

func TestDecodeSignalCreated(t *testing.T) {
	ev, err := Decode(envelope(KindSignalCreated, `{"signalId":7,"fid":42,"token":"0x4ed4E862860beD51a9570b96d89aF5E1B0Efefed","direction":true,"durationDays":3,"createdAt":1740000000,"expiresAt":1740259200}`))
	require.NoError(t, err)
	sc, ok := ev.(SignalCreated)
	require.True(t, ok)
	assert.Equal(t, uint64(7), sc.SignalID)
	assert.Equal(t, "0x4ed4e862860bed51a9570b96d89af5e1b0efefed", sc.Token)
	assert.Equal(t, "0xab00000000000000000000000000000000000000000000000000000000000001", sc.TxHash)
	assert.Equal(t, uint64(8453), sc.EventMeta().ChainID)
	assert.True(t, sc.Direction)
}

func TestDecodeSignalCreatedFallsBackToBlockTimestamp(t *testing.T) {
	ev, err := Decode(envelope(KindSignalCreated, `{"signalId":7,"fid":42,"token":"0x4ed4E862860beD51a9570b96d89aF5E1B0Efefed","direction":false,"durationDays":1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1_740_000_000), ev.(SignalCreated).CreatedAt)
}

func TestDecodeResolvedBigTotal(t *testing.T) {
	ev, err := Decode(envelope(KindSignalResolved, `{"signalId":7,"fid":42,"mfsDelta":-5,"newTotalMFS":"115792089237316195423570985008687907853269984665640564039457584007913129639935"}`))
	require.NoError(t, err)
	sr := ev.(SignalResolved)
	assert.Equal(t, int64(-5), sr.MFSDelta)
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", sr.NewTotalMFS.String())
}

func TestDecodeBanKinds(t *testing.T) {
	ev, err := Decode(envelope(KindFidUnbanned, `{"fid":9}`))
	require.NoError(t, err)
	ban := ev.(FidBanChanged)
	assert.False(t, ban.Banned)
	assert.Equal(t, KindFidUnbanned, ban.EventKind())

	ev, err = Decode(envelope(KindWalletBanned, `{"wallet":"0x000000000000000000000000000000000000dEaD"}`))
	require.NoError(t, err)
	wb := ev.(WalletBanChanged)
	assert.True(t, wb.Banned)
	assert.Equal(t, "0x000000000000000000000000000000000000dead", wb.Wallet)

	ev, err = Decode(envelope(KindWalletUnauthorized, `{"fid":3,"wallet":"0x000000000000000000000000000000000000dEaD"}`))
	require.NoError(t, err)
	_, ok := ev.(WalletUnauthorized)
	assert.True(t, ok)
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
		want error
	}{
		{"unknown kind", envelope("Transfer", `{}`), ErrUnknownKind},
		{"bad token", envelope(KindSignalCreated, `{"signalId":1,"fid":1,"token":"0x12","durationDays":1}`), ErrInvalidEvent},
		{"missing signal id", envelope(KindSignalResolved, `{"fid":1}`), ErrInvalidEvent},
		{"bad args", envelope(KindFidBanned, `[1,2]`), ErrInvalidEvent},
		{"bad hash", Envelope{Kind: KindFidBanned, Meta: Meta{BlockNumber: 1, TxHash: "0x1234"}, Args: json.RawMessage(`{"fid":1}`)}, ErrInvalidEvent},
		{"no block", Envelope{Kind: KindFidBanned, Meta: Meta{TxHash: txHash}, Args: json.RawMessage(`{"fid":1}`)}, ErrInvalidEvent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.env)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
