// Package audit delivers domain events to a sink.
//
// # Components
//
//   - [Event] is the structured record: name, severity, timestamp, user,
//     session, client address and a string field map.
//   - [Sink] consumes events. [NoOpSink], [ChannelSink], [JSONWriterSink] and
//     [SlogSink] are provided.
//   - [Dispatcher] relays events to a sink, either inline or through a
//     buffered queue with drop-if-full or block-if-full semantics.
//
// # What this package must NOT do
//
//   - Decide which events exist or what severity they carry; the Engine does.
//   - Filter or suppress events based on business logic.
//   - Import the root package or any sibling internal package.
package audit
