package trade

import (
	"bytes"
	"fmt"
	"math/big"
	"testing"

	"tradevault/core/events"
	"tradevault/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) seen(eventType string) bool {
	for _, evt := range c.events {
		if evt.EventType() == eventType {
			return true
		}
	}
	return false
}

type mockToken struct {
	balances   map[[20]byte]*big.Int
	allowances map[[20]byte]map[[20]byte]*big.Int
}

func newMockToken() *mockToken {
	return &mockToken{
		balances:   make(map[[20]byte]*big.Int),
		allowances: make(map[[20]byte]map[[20]byte]*big.Int),
	}
}

func (m *mockToken) setBalance(owner [20]byte, amount int64) {
	m.balances[owner] = big.NewInt(amount)
}

func (m *mockToken) approve(owner, spender [20]byte, amount int64) {
	if m.allowances[owner] == nil {
		m.allowances[owner] = make(map[[20]byte]*big.Int)
	}
	m.allowances[owner][spender] = big.NewInt(amount)
}

func (m *mockToken) BalanceOf(owner [20]byte) *big.Int {
	if bal, ok := m.balances[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (m *mockToken) Allowance(owner, spender [20]byte) *big.Int {
	if granted, ok := m.allowances[owner][spender]; ok {
		return new(big.Int).Set(granted)
	}
	return big.NewInt(0)
}

func (m *mockToken) TransferFrom(from, to [20]byte, amount *big.Int) error {
	bal := m.BalanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("mock token: balance too low")
	}
	m.balances[from] = new(big.Int).Sub(bal, amount)
	m.balances[to] = new(big.Int).Add(m.BalanceOf(to), amount)
	return nil
}

type mockNFT struct {
	owners   map[uint64][20]byte
	approved map[uint64][20]byte
}

func newMockNFT() *mockNFT {
	return &mockNFT{
		owners:   make(map[uint64][20]byte),
		approved: make(map[uint64][20]byte),
	}
}

func (m *mockNFT) mint(owner [20]byte, tokenID uint64) {
	m.owners[tokenID] = owner
}

func (m *mockNFT) approve(spender [20]byte, tokenID uint64) {
	m.approved[tokenID] = spender
}

func (m *mockNFT) OwnerOf(tokenID uint64) ([20]byte, error) {
	owner, ok := m.owners[tokenID]
	if !ok {
		return [20]byte{}, fmt.Errorf("mock nft: unknown token %d", tokenID)
	}
	return owner, nil
}

func (m *mockNFT) GetApproved(tokenID uint64) ([20]byte, error) {
	return m.approved[tokenID], nil
}

func (m *mockNFT) TransferFrom(from, to [20]byte, tokenID uint64) error {
	owner, ok := m.owners[tokenID]
	if !ok || owner != from {
		return fmt.Errorf("mock nft: %d not owned by sender", tokenID)
	}
	m.owners[tokenID] = to
	delete(m.approved, tokenID)
	return nil
}

type testEnv struct {
	engine      *Engine
	ledger      *Ledger
	bank        *AccountBank
	registry    *StaticRegistry
	sellerToken *mockToken
	buyerToken  *mockToken
	nft         *mockNFT
	emitter     *capturingEmitter
	now         int64

	seller          [20]byte
	buyer           [20]byte
	vault           [20]byte
	sellerTokenAddr [20]byte
	buyerTokenAddr  [20]byte
	nftAddr         [20]byte
}

// failingDB injects write failures after a fixed number of successful puts.
type failingDB struct {
	storage.Database
	failAfterPuts int
	puts          int
}

func (db *failingDB) Put(key, value []byte) error {
	db.puts++
	if db.puts > db.failAfterPuts {
		return fmt.Errorf("simulated write failure")
	}
	return db.Database.Put(key, value)
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return setupEnvOn(t, db, db)
}

// setupEnvOn builds the engine over separate ledger and bank stores so tests
// can inject storage failures into one without disturbing the other.
func setupEnvOn(t *testing.T, ledgerDB, bankDB storage.Database) *testEnv {
	t.Helper()
	ledger, err := NewLedger(ledgerDB)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	env := &testEnv{
		ledger:          ledger,
		bank:            NewAccountBank(bankDB),
		registry:        NewStaticRegistry(),
		sellerToken:     newMockToken(),
		buyerToken:      newMockToken(),
		nft:             newMockNFT(),
		emitter:         &capturingEmitter{},
		now:             1000,
		seller:          newTestAddress(0x01),
		buyer:           newTestAddress(0x02),
		vault:           newTestAddress(0xEE),
		sellerTokenAddr: newTestAddress(0x51),
		buyerTokenAddr:  newTestAddress(0x52),
		nftAddr:         newTestAddress(0x53),
	}
	env.registry.RegisterToken(env.sellerTokenAddr, env.sellerToken)
	env.registry.RegisterToken(env.buyerTokenAddr, env.buyerToken)
	env.registry.RegisterNFT(env.nftAddr, env.nft)
	custody := NewCustody(env.bank, env.registry, env.vault)
	env.engine = NewEngine(ledger, custody)
	env.engine.SetEmitter(env.emitter)
	env.engine.SetNowFunc(func() int64 { return env.now })

	if err := env.bank.Mint(env.seller, big.NewInt(1000)); err != nil {
		t.Fatalf("mint seller: %v", err)
	}
	if err := env.bank.Mint(env.buyer, big.NewInt(1000)); err != nil {
		t.Fatalf("mint buyer: %v", err)
	}
	env.sellerToken.setBalance(env.seller, 1000)
	env.buyerToken.setBalance(env.buyer, 1000)
	return env
}

// tokenLeg is a leg moving only fungible tokens.
func tokenLeg(token [20]byte, amount int64) AssetLeg {
	return AssetLeg{Token: token, TokenAmount: big.NewInt(amount)}
}

// mixedLeg combines native value with a fungible component.
func mixedLeg(native int64, token [20]byte, amount int64) AssetLeg {
	return AssetLeg{NativeAmount: big.NewInt(native), Token: token, TokenAmount: big.NewInt(amount)}
}

// nativeLeg carries only native value.
func nativeLeg(amount int64) AssetLeg {
	return AssetLeg{NativeAmount: big.NewInt(amount)}
}

// nftLeg carries a single non-fungible token.
func nftLeg(contract [20]byte, tokenID uint64) AssetLeg {
	return AssetLeg{NFT: contract, NFTTokenID: tokenID}
}

// checkAccounting asserts the central custody invariant: the sum of all
// escrowed native attributions equals the vault's actual native balance.
func (env *testEnv) checkAccounting(t *testing.T) {
	t.Helper()
	total := env.engine.TotalEscrowedNative()
	vault := env.engine.VaultNativeBalance()
	if total.Cmp(vault) != 0 {
		t.Fatalf("accounting mismatch: escrowed %s, vault holds %s", total, vault)
	}
}
