package trade

// StaticRegistry is a TokenRegistry over fixed in-process collaborator
// instances, registered at wiring time.
type StaticRegistry struct {
	tokens map[[20]byte]TokenContract
	nfts   map[[20]byte]NFTContract
}

// NewStaticRegistry returns an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		tokens: make(map[[20]byte]TokenContract),
		nfts:   make(map[[20]byte]NFTContract),
	}
}

// RegisterToken binds a fungible token contract to its address.
func (r *StaticRegistry) RegisterToken(addr [20]byte, token TokenContract) {
	r.tokens[addr] = token
}

// RegisterNFT binds a non-fungible contract to its address.
func (r *StaticRegistry) RegisterNFT(addr [20]byte, nft NFTContract) {
	r.nfts[addr] = nft
}

func (r *StaticRegistry) Token(addr [20]byte) (TokenContract, bool) {
	token, ok := r.tokens[addr]
	return token, ok
}

func (r *StaticRegistry) NFT(addr [20]byte) (NFTContract, bool) {
	nft, ok := r.nfts[addr]
	return nft, ok
}
