package model

type (
	// User is a provisioned identity. PrivateKey is populated only for the
	// identity owned by the local process; it never crosses the wire.
	User struct {
		ID         string `json:"id" bson:"id"`
		Name       string `json:"name" bson:"name"`
		PublicKey  []byte `json:"publicKey" bson:"public_key"`
		PrivateKey []byte `json:"-" bson:"private_key,omitempty"`
	}
)
