package application

import "errors"

var (
	// ErrNullBlock ...
	ErrNullBlock = errors.New("block must not be null")
	// ErrNullDestinationAddress ...
	ErrNullDestinationAddress = errors.New("destination address must not be null")
	// ErrMissingRepoManager ...
	ErrMissingRepoManager = errors.New("missing repository manager")
	// ErrMissingChainClient ...
	ErrMissingChainClient = errors.New("missing chain client")
	// ErrMissingScanCache ...
	ErrMissingScanCache = errors.New("missing scan cache")
	// ErrMissingNetwork ...
	ErrMissingNetwork = errors.New("missing network params")
)
