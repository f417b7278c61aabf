package mysql

// -----------------------------------------------------------------------------
// USERS
// -----------------------------------------------------------------------------

const userColumns = `id, name, email, password_hash, stripe_account_id, stripe_seller, stripe_session, created_at, updated_at`

const insertUserSQL = `
INSERT INTO users
  (id, name, email, password_hash, stripe_account_id, stripe_seller, stripe_session, created_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateUserSQL = `
UPDATE users SET
  name              = ?,
  stripe_account_id = ?,
  stripe_seller     = ?,
  stripe_session    = ?,
  updated_at        = ?
WHERE id = ?
`

const selectUserSQL = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

const selectUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

const selectUserByAccountSQL = `SELECT ` + userColumns + ` FROM users WHERE stripe_account_id = ? LIMIT 1`

// -----------------------------------------------------------------------------
// HOTELS
// -----------------------------------------------------------------------------

const hotelColumns = `id, owner_id, title, content, location, lat, lon, price, bed, date_from, date_to, has_image, created_at, updated_at`

const insertHotelSQL = `
INSERT INTO hotels
  (id, owner_id, title, content, location, lat, lon, price, bed, date_from, date_to, has_image, created_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateHotelSQL = `
UPDATE hotels SET
  title      = ?,
  content    = ?,
  location   = ?,
  lat        = ?,
  lon        = ?,
  price      = ?,
  bed        = ?,
  date_from  = ?,
  date_to    = ?,
  has_image  = ?,
  updated_at = ?
WHERE id = ?
`

const setCoordinatesSQL = `
UPDATE hotels SET lat = ?, lon = ?, updated_at = ?
WHERE id = ? AND location = ?
`

const selectHotelSQL = `SELECT ` + hotelColumns + ` FROM hotels WHERE id = ?`

const deleteHotelSQL = `DELETE FROM hotels WHERE id = ?`

// ListHotels appends its WHERE clause, ordering and limit to this prefix.
const listHotelsPrefix = `SELECT ` + hotelColumns + ` FROM hotels`

// -----------------------------------------------------------------------------
// IMAGES
// -----------------------------------------------------------------------------

const upsertImageSQL = `
INSERT INTO hotel_images (hotel_id, content_type, data)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
  content_type = VALUES(content_type),
  data         = VALUES(data)
`

const selectImageSQL = `SELECT content_type, data FROM hotel_images WHERE hotel_id = ?`

const deleteImageSQL = `DELETE FROM hotel_images WHERE hotel_id = ?`

// -----------------------------------------------------------------------------
// ORDERS
// -----------------------------------------------------------------------------

const orderColumns = `id, hotel_id, user_id, session, created_at`

const insertOrderSQL = `
INSERT INTO orders (id, hotel_id, user_id, session_id, session, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

const selectOrderBySessionSQL = `SELECT ` + orderColumns + ` FROM orders WHERE session_id = ?`

const listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC`

const hasOrderSQL = `SELECT EXISTS(SELECT 1 FROM orders WHERE user_id = ? AND hotel_id = ?)`
