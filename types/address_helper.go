package types

import "github.com/objectledger/valcore/crypto"

const addressLength = crypto.AddressLength

func addressFromRaw(b []byte) (Address, error) {
	return crypto.NewAddress(crypto.ValidatorPrefix, b)
}
