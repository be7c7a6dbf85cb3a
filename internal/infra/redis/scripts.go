package redis

import "github.com/redis/go-redis/v9"

// Every node lives in its own string key "<prefix>node:<path>" holding the
// JSON leaf. The sorted set "<prefix>index" lists all leaf paths with score 0
// so a subtree is one ZRANGEBYLEX away.

// KEYS[1] index. ARGV: node prefix, lexmin, lexmax, path.
var readScript = redis.NewScript(`
local index, prefix = KEYS[1], ARGV[1]
local out = {}
local v = redis.call('GET', prefix .. ARGV[4])
if v then
  out[#out + 1] = ARGV[4]
  out[#out + 1] = v
end
local paths = redis.call('ZRANGEBYLEX', index, ARGV[2], ARGV[3])
for _, p in ipairs(paths) do
  local leaf = redis.call('GET', prefix .. p)
  if leaf then
    out[#out + 1] = p
    out[#out + 1] = leaf
  end
end
return out
`)

// clearLua removes path, its subtree and any ancestor that is a leaf.
const clearLua = `
local function clear(index, prefix, path)
  local subtree = redis.call('ZRANGEBYLEX', index, '[' .. path .. '/', '(' .. path .. '0')
  for _, p in ipairs(subtree) do
    redis.call('DEL', prefix .. p)
    redis.call('ZREM', index, p)
  end
  local acc = ''
  for seg in string.gmatch(path, '[^/]+') do
    if acc == '' then acc = seg else acc = acc .. '/' .. seg end
    redis.call('DEL', prefix .. acc)
    redis.call('ZREM', index, acc)
  end
end

local function put(index, prefix, first)
  for i = first, #ARGV, 2 do
    redis.call('SET', prefix .. ARGV[i], ARGV[i + 1])
    redis.call('ZADD', index, 0, ARGV[i])
  end
end
`

// KEYS[1] index. ARGV: node prefix, n, n paths to clear, then leaf/value pairs.
var replaceScript = redis.NewScript(clearLua + `
local index, prefix, n = KEYS[1], ARGV[1], tonumber(ARGV[2])
for i = 3, n + 2 do
  clear(index, prefix, ARGV[i])
end
put(index, prefix, n + 3)
return 1
`)

// KEYS[1] index. ARGV: node prefix, path, then leaf/value pairs. Returns 0
// when anything already exists at, above or below path.
var createScript = redis.NewScript(clearLua + `
local index, prefix, path = KEYS[1], ARGV[1], ARGV[2]
local acc = ''
for seg in string.gmatch(path, '[^/]+') do
  if acc == '' then acc = seg else acc = acc .. '/' .. seg end
  if redis.call('EXISTS', prefix .. acc) == 1 then
    return 0
  end
end
local below = redis.call('ZRANGEBYLEX', index, '[' .. path .. '/', '(' .. path .. '0', 'LIMIT', 0, 1)
if #below > 0 then
  return 0
end
put(index, prefix, 3)
return 1
`)
