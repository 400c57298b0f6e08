package orders

// MySQLSchema creates the order tables and seeds the product catalog. The
// driver runs one statement per Exec unless multiStatements is enabled.
var MySQLSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
    id BIGINT NOT NULL PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    price DECIMAL(18,2) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS orders (
    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    customer_name VARCHAR(200) NOT NULL,
    customer_email VARCHAR(200) NOT NULL,
    order_date DATETIME(6) NOT NULL,
    total_amount DECIMAL(18,2) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS order_items (
    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    order_id BIGINT NOT NULL,
    product_id BIGINT NOT NULL,
    quantity INT NOT NULL,
    price DECIMAL(18,2) NOT NULL,
    CONSTRAINT fk_order_items_order FOREIGN KEY (order_id) REFERENCES orders (id) ON DELETE CASCADE,
    CONSTRAINT fk_order_items_product FOREIGN KEY (product_id) REFERENCES products (id)
)`,
	`INSERT IGNORE INTO products (id, name, price) VALUES
    (1, 'Laptop', 1299.99),
    (2, 'Mouse', 29.99),
    (3, 'Keyboard', 79.99),
    (4, 'Monitor', 399.99),
    (5, 'USB Cable', 9.99)`,
}

// PostgresSchema creates the same tables in PostgreSQL.
const PostgresSchema = `CREATE TABLE IF NOT EXISTS products (
    id BIGINT PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    price NUMERIC(18,2) NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
    id BIGSERIAL PRIMARY KEY,
    customer_name VARCHAR(200) NOT NULL,
    customer_email VARCHAR(200) NOT NULL,
    order_date TIMESTAMPTZ NOT NULL,
    total_amount NUMERIC(18,2) NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items (
    id BIGSERIAL PRIMARY KEY,
    order_id BIGINT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
    product_id BIGINT NOT NULL REFERENCES products (id),
    quantity INT NOT NULL,
    price NUMERIC(18,2) NOT NULL
);
INSERT INTO products (id, name, price) VALUES
    (1, 'Laptop', 1299.99),
    (2, 'Mouse', 29.99),
    (3, 'Keyboard', 79.99),
    (4, 'Monitor', 399.99),
    (5, 'USB Cable', 9.99)
ON CONFLICT (id) DO NOTHING;`
