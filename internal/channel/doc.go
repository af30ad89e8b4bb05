// Package channel defines the support channels a message can arrive on and
// the adapters that format generated responses for each channel.
//
// Adapters are pure transformations. They never perform network I/O, which
// keeps outbound formatting exhaustively unit-testable without transport
// mocks. Delivery itself is the queue consumer's concern.
package channel
