// Package testing contains helpers shared by tests in this module, including
// a test schema that exercises every kind of field.
package testing

// TestProto is a proto2 schema with scalars of every kind, defaults,
// required fields, collections, extensions and recursion.
const TestProto = `
syntax = "proto2";

package protodyn.test;

enum Color {
  COLOR_UNSPECIFIED = 0;
  RED = 1;
  GREEN = 2;
  BLUE = 3;
}

message Scalars {
  optional int32 i32 = 1;
  optional int64 i64 = 2;
  optional uint32 u32 = 3;
  optional uint64 u64 = 4;
  optional sint32 s32 = 5;
  optional sint64 s64 = 6;
  optional fixed32 f32 = 7;
  optional fixed64 f64 = 8;
  optional sfixed32 sf32 = 9;
  optional sfixed64 sf64 = 10;
  optional float fl = 11;
  optional double db = 12;
  optional bool b = 13;
  optional string str = 14;
  optional bytes byt = 15;
  optional Color color = 16;
}

message Defaults {
  optional int32 count = 1 [default = 42];
  optional string name = 2 [default = "hello"];
  optional Color color = 3 [default = GREEN];
  optional int32 plain = 4;
}

message Inner {
  optional int32 count = 1;
  optional string label = 2;
}

message Middle {
  optional Inner inner = 1;
  repeated Inner inners = 2;
}

message Outer {
  optional Middle middle = 1;
  optional string first_name = 2;
  optional int32 count = 3;
  extensions 100 to 200;
}

extend Outer {
  optional string note = 100;
  repeated int32 tags = 101;
  optional Inner extra = 102;
}

message Collections {
  repeated int32 numbers = 1;
  repeated string names = 2;
  repeated Inner inners = 3;
  map<string, int32> counts = 4;
  map<int64, Inner> inner_by_id = 5;
  map<bool, string> flags = 6;
  repeated Color colors = 7;
  map<uint32, bytes> blobs = 8;
}

message Required {
  required string id = 1;
  optional int32 count = 2;
}

message HasRequired {
  optional Required req = 1;
  optional string label = 2;
}

message Recursive {
  optional Recursive child = 1;
  optional int32 value = 2;
}

message Choice {
  oneof kind {
    string text = 1;
    int32 number = 2;
  }
}
`

// Test3Proto is a proto3 schema with open enums, explicit presence and
// message-valued maps.
const Test3Proto = `
syntax = "proto3";

package protodyn.test3;

enum Level {
  LEVEL_UNSPECIFIED = 0;
  LOW = 1;
  HIGH = 2;
}

message Event {
  string name = 1;
  Level level = 2;
  optional int32 priority = 3;
  repeated string tags = 4;
  map<string, Detail> details = 5;
}

message Detail {
  string text = 1;
  int64 weight = 2;
  Level level = 3;
}
`
